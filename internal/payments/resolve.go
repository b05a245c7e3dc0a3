package payments

import (
	"strings"

	"github.com/aipainter/backend/internal/catalog"
	"github.com/aipainter/backend/internal/models"
)

// Extractor pulls a price identifier out of one shape of payment event.
// It returns "" when its shape is absent.
type Extractor func(ev models.PaymentEvent) string

// DefaultExtractors is the resolution order: first line item, top-level
// price, first entry of the prices array, then the amount table.
var DefaultExtractors = []Extractor{
	LineItemPrice,
	TopLevelPrice,
	PricesArray,
	AmountPrice(catalog.AmountPrices),
}

func LineItemPrice(ev models.PaymentEvent) string {
	if len(ev.Items) == 0 || ev.Items[0].Price == nil {
		return ""
	}
	return strings.TrimSpace(ev.Items[0].Price.ID)
}

func TopLevelPrice(ev models.PaymentEvent) string {
	if ev.Price == nil {
		return ""
	}
	return strings.TrimSpace(ev.Price.ID)
}

func PricesArray(ev models.PaymentEvent) string {
	if len(ev.Prices) == 0 {
		return ""
	}
	return strings.TrimSpace(ev.Prices[0].ID)
}

// AmountPrice maps the paid amount in minor units to a price id.
func AmountPrice(table map[int64]string) Extractor {
	return func(ev models.PaymentEvent) string {
		if ev.Amount <= 0 {
			return ""
		}
		return table[ev.Amount]
	}
}

// ResolvePriceID runs extractors in order and stops at the first non-empty id.
func ResolvePriceID(ev models.PaymentEvent, extractors []Extractor) string {
	for _, extract := range extractors {
		if id := extract(ev); id != "" {
			return id
		}
	}
	return ""
}
