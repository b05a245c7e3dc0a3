package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/aipainter/backend/internal/catalog"
	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/middleware"
	"github.com/aipainter/backend/internal/models"
	"github.com/aipainter/backend/internal/payments"
	"github.com/aipainter/backend/internal/storage"
	"github.com/aipainter/backend/internal/transform"
)

const testBucket = "painter-uploads"

var inputPNG = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

// stubTransformer records calls and returns a fixed result.
type stubTransformer struct {
	mu    sync.Mutex
	calls int
	out   []byte
	err   error
	hook  func()
}

func (s *stubTransformer) Transform(ctx context.Context, in transform.Input) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if in.Prompt != transform.DefaultPrompt {
		return nil, errors.New("unexpected prompt")
	}
	return s.out, s.err
}

func (s *stubTransformer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	store  *ledger.MemoryStore
	fs     afero.Fs
	bucket *storage.Bucket
	tr     *stubTransformer
	svc    *Service
	h      *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "uploads/user-1/in.png", inputPNG, 0o644); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	if err := afero.WriteFile(fs, "uploads/user-1/notes.txt", []byte("hello there, not an image"), 0o644); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	if err := afero.WriteFile(fs, "uploads/user-1/huge.png", append(append([]byte{}, inputPNG...), make([]byte, 4096)...), 0o644); err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	f := &fixture{
		store:  ledger.NewMemoryStore(),
		fs:     fs,
		bucket: storage.NewBucket(fs, testBucket, 1024),
		tr:     &stubTransformer{out: []byte("stylized")},
	}
	f.svc = NewService(f.store, f.bucket, f.tr, time.Second, nil, nil)
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	f.h = NewHandler(f.svc, v, nil)
	return f
}

func (f *fixture) post(userID, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	f.h.Generate(rec, req)
	return rec
}

const validBody = `{"imageUrl":"gs://painter-uploads/uploads/user-1/in.png"}`

// ---------------------------------------------------------------------------
// 1. Success -> 200, one credit consumed, artwork persisted
// ---------------------------------------------------------------------------

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 3)
	f.svc.newID = func() string { return "art-1" }

	rec := f.post("user-1", "application/json; charset=utf-8", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ImageBase64 != base64.StdEncoding.EncodeToString([]byte("stylized")) || res.ArtworkID != "art-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.store.Balance("user-1"); got != 2 {
		t.Errorf("expected balance 2, got %d", got)
	}
	if ok, _ := afero.Exists(f.fs, "artworks/user-1/art-1.png"); !ok {
		t.Error("artwork not written")
	}

	entries, _ := f.store.ListEntries(context.Background(), "user-1", 10)
	if len(entries) != 1 || entries[0].EntryType != models.CreditEntryGeneration || entries[0].Amount != -1 {
		t.Errorf("expected one generation entry of -1, got %+v", entries)
	}
}

// ---------------------------------------------------------------------------
// 2. Failed or empty transform -> 500 and no charge
// ---------------------------------------------------------------------------

func TestGenerate_NoChargeOnTransformFailure(t *testing.T) {
	cases := []struct {
		name string
		out  []byte
		err  error
	}{
		{"error", nil, errors.New("model unavailable")},
		{"timeout", nil, context.DeadlineExceeded},
		{"empty output", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.Seed("user-1", 3)
			f.tr.out, f.tr.err = tc.out, tc.err

			rec := f.post("user-1", "application/json", validBody)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			if strings.Contains(rec.Body.String(), "model unavailable") {
				t.Errorf("internal error leaked: %s", rec.Body.String())
			}
			if got := f.store.Balance("user-1"); got != 3 {
				t.Errorf("balance changed to %d", got)
			}
		})
	}
}

func TestGenerate_TransformTimeoutApplied(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 1)
	slow := &deadlineTransformer{}
	f.svc = NewService(f.store, f.bucket, slow, 20*time.Millisecond, nil, nil)

	_, err := f.svc.Generate(context.Background(), "user-1", validRef)
	if !errors.Is(err, ErrTransformFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transform deadline error, got %v", err)
	}
	if got := f.store.Balance("user-1"); got != 1 {
		t.Errorf("balance changed to %d", got)
	}
}

const validRef = "uploads/user-1/in.png"

type deadlineTransformer struct{}

func (deadlineTransformer) Transform(ctx context.Context, _ transform.Input) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// ---------------------------------------------------------------------------
// 3. Balance gate -> 402 without calling the transform
// ---------------------------------------------------------------------------

func TestGenerate_InsufficientCredits(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-0", 0)

	for _, user := range []string{"user-0", "no-account"} {
		rec := f.post(user, "application/json", validBody)
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("%s: expected 402, got %d", user, rec.Code)
		}
	}
	if f.tr.Calls() != 0 {
		t.Errorf("transform should not run, ran %d times", f.tr.Calls())
	}
}

// ---------------------------------------------------------------------------
// 4. Request and input validation
// ---------------------------------------------------------------------------

func TestGenerate_RequestErrors(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"wrong content type", "text/plain", validBody, http.StatusUnsupportedMediaType},
		{"missing content type", "", validBody, http.StatusUnsupportedMediaType},
		{"malformed json", "application/json", `{`, http.StatusBadRequest},
		{"missing imageUrl", "application/json", `{}`, http.StatusBadRequest},
		{"blank imageUrl", "application/json", `{"imageUrl":"  "}`, http.StatusBadRequest},
		{"non-string imageUrl", "application/json", `{"imageUrl":42}`, http.StatusBadRequest},
		{"foreign bucket", "application/json", `{"imageUrl":"gs://other/uploads/user-1/in.png"}`, http.StatusBadRequest},
		{"traversal", "application/json", `{"imageUrl":"uploads/../secrets.png"}`, http.StatusBadRequest},
		{"absolute key", "application/json", `{"imageUrl":"/etc/passwd"}`, http.StatusBadRequest},
		{"missing object", "application/json", `{"imageUrl":"uploads/user-1/gone.png"}`, http.StatusBadRequest},
		{"oversized object", "application/json", `{"imageUrl":"uploads/user-1/huge.png"}`, http.StatusRequestEntityTooLarge},
		{"unsupported media", "application/json", `{"imageUrl":"uploads/user-1/notes.txt"}`, http.StatusUnsupportedMediaType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.Seed("user-1", 3)

			rec := f.post("user-1", tc.contentType, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if got := f.store.Balance("user-1"); got != 3 {
				t.Errorf("balance changed to %d", got)
			}
			if f.tr.Calls() != 0 {
				t.Errorf("transform should not run")
			}
		})
	}
}

func TestGenerate_BalanceGatePrecedesInput(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{"missing imageUrl", "application/json", `{}`},
		{"wrong content type", "text/plain", validBody},
		{"malformed json", "application/json", `{`},
		{"missing object", "application/json", `{"imageUrl":"uploads/user-1/gone.png"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.Seed("user-1", 0)

			rec := f.post("user-1", tc.contentType, tc.body)
			if rec.Code != http.StatusPaymentRequired {
				t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
			}
			if f.tr.Calls() != 0 {
				t.Errorf("transform should not run")
			}
		})
	}
}

func TestGenerate_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	if rec := f.post("", "application/json", validBody); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 5. N concurrent requests on a balance of 1 -> exactly one success
// ---------------------------------------------------------------------------

func TestGenerate_ConcurrentSingleCredit(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 1)
	const n = 10
	// Hold every transform until all n requests are past the balance gate.
	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)
	f.tr.hook = func() {
		mu.Lock()
		arrived++
		if arrived == n {
			close(release)
		}
		mu.Unlock()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}

	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- f.post("user-1", "application/json", validBody).Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusPaymentRequired] != n-1 {
		t.Fatalf("expected 1x200 and %dx402, got %v", n-1, counts)
	}
	if got := f.tr.Calls(); got != n {
		t.Fatalf("expected all %d requests to reach the transform, got %d", n, got)
	}
	if got := f.store.Balance("user-1"); got != 0 {
		t.Errorf("expected balance 0, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// 6. Settlement survives a client disconnect after the transform
// ---------------------------------------------------------------------------

func TestGenerate_SettlesAfterClientCancel(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 2)

	ctx, cancel := context.WithCancel(context.Background())
	f.tr.hook = cancel

	if _, err := f.svc.Generate(ctx, "user-1", validRef); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := f.store.Balance("user-1"); got != 1 {
		t.Fatalf("expected output to be charged, balance %d", got)
	}
}

// ---------------------------------------------------------------------------
// 7. Starter pack: 10 generations, then 402 without a transform call
// ---------------------------------------------------------------------------

func TestGenerate_StarterPackScenario(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 0)
	rec := payments.NewReconciler(f.store, catalog.Default(), nil, nil)
	ev := models.PaymentEvent{Status: models.PaymentStatusSucceeded, Price: &models.PriceRef{ID: "starter"}}
	if err := rec.HandlePaymentEvent(context.Background(), "user-1", "pay-starter", ev); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if got := f.store.Balance("user-1"); got != 10 {
		t.Fatalf("expected 10 credits, got %d", got)
	}

	for i := 1; i <= 10; i++ {
		if code := f.post("user-1", "application/json", validBody).Code; code != http.StatusOK {
			t.Fatalf("generation %d: expected 200, got %d", i, code)
		}
	}
	if code := f.post("user-1", "application/json", validBody).Code; code != http.StatusPaymentRequired {
		t.Fatalf("generation 11: expected 402, got %d", code)
	}
	if f.tr.Calls() != 10 {
		t.Errorf("expected 10 transform calls, got %d", f.tr.Calls())
	}
	if got := f.store.Balance("user-1"); got != 0 {
		t.Errorf("expected balance 0, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// 8. Artwork write failure does not fail the request
// ---------------------------------------------------------------------------

type failingPut struct{ *storage.Bucket }

func (failingPut) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestGenerate_ArtworkBestEffort(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("user-1", 1)
	svc := NewService(f.store, failingPut{f.bucket}, f.tr, time.Second, nil, nil)

	res, err := svc.Generate(context.Background(), "user-1", validRef)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ArtworkID != "" {
		t.Errorf("artworkId should be omitted, got %q", res.ArtworkID)
	}
	if got := f.store.Balance("user-1"); got != 0 {
		t.Errorf("expected balance 0, got %d", got)
	}
}
