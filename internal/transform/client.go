// Package transform calls the generative image model.
package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPrompt is the fixed style prompt sent with every image.
const DefaultPrompt = "a painting of a landscape"

var (
	ErrNoImage       = errors.New("transform: model returned no image")
	ErrUpstream      = errors.New("transform: upstream error")
	ErrNotConfigured = errors.New("transform: endpoint not configured")
)

// Input is one transform request.
type Input struct {
	Image    []byte
	MimeType string
	Prompt   string
}

// Client turns an input image into a stylized output image.
type Client interface {
	Transform(ctx context.Context, in Input) ([]byte, error)
}

// HTTPClient posts to a Vertex-style :predict endpoint.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

type predictImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type predictInstance struct {
	Prompt string       `json:"prompt"`
	Image  predictImage `json:"image"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters struct {
		SampleCount int `json:"sampleCount"`
	} `json:"parameters"`
}

type predictResponse struct {
	Predictions []predictImage `json:"predictions"`
}

func (c *HTTPClient) Transform(ctx context.Context, in Input) ([]byte, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	prompt := in.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	var body predictRequest
	body.Instances = []predictInstance{{
		Prompt: prompt,
		Image: predictImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(in.Image),
			MimeType:           in.MimeType,
		},
	}}
	body.Parameters.SampleCount = 1

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transform model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(out.Predictions) == 0 || out.Predictions[0].BytesBase64Encoded == "" {
		return nil, ErrNoImage
	}
	img, err := base64.StdEncoding.DecodeString(out.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrUpstream, err)
	}
	if len(img) == 0 {
		return nil, ErrNoImage
	}
	return img, nil
}
