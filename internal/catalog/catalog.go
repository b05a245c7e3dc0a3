// Package catalog maps checkout price identifiers to credit amounts.
//
// The table is maintained by hand: a new product at the payment provider is
// not purchasable for credits until it has an entry here.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Stripe price ids for the credit packs sold in the app.
const (
	PriceStarter = "price_1SJ0UWGdnHfsTKebUDHcFzL3"
	PricePopular = "price_1SJ0eSGdnHfsTKeb3RErkfWa"
	PricePro     = "price_1Sb955GdnHfsTKebNLgWcpdc"
	PriceArtist  = "price_1Sb95BGdnHfsTKebUlBo75LW"
)

var (
	ErrInvalidAmount  = errors.New("catalog: credit amount must be positive")
	ErrEmptyPriceID   = errors.New("catalog: empty price id")
	ErrDuplicatePrice = errors.New("catalog: duplicate price id")
)

// Entry is one purchasable credit pack.
type Entry struct {
	PriceID string
	Plan    string
	Credits int
}

// Catalog is immutable after New returns and safe for concurrent use.
type Catalog struct {
	byPrice map[string]int
}

// DefaultEntries is the production credit table.
func DefaultEntries() []Entry {
	return []Entry{
		{PriceID: PriceStarter, Plan: "starter", Credits: 10},
		{PriceID: PricePopular, Plan: "popular", Credits: 30},
		{PriceID: PricePro, Plan: "pro", Credits: 50},
		{PriceID: PriceArtist, Plan: "artist", Credits: 100},
	}
}

// New builds a catalog. Both the price id and, when set, the plan name are
// accepted as lookup keys.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{byPrice: make(map[string]int, len(entries)*2)}
	for _, e := range entries {
		id := strings.TrimSpace(e.PriceID)
		if id == "" {
			return nil, ErrEmptyPriceID
		}
		if e.Credits <= 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidAmount, id, e.Credits)
		}
		keys := []string{id}
		if plan := strings.TrimSpace(e.Plan); plan != "" {
			keys = append(keys, plan)
		}
		for _, k := range keys {
			if _, dup := c.byPrice[k]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicatePrice, k)
			}
			c.byPrice[k] = e.Credits
		}
	}
	return c, nil
}

// Default returns the catalog built from DefaultEntries.
func Default() *Catalog {
	c, err := New(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the credit amount for priceID.
func (c *Catalog) Lookup(priceID string) (int, bool) {
	n, ok := c.byPrice[priceID]
	return n, ok
}

// AmountPrices maps a charged amount in minor units to a price id. It is only
// consulted for events that carry no structured price data.
var AmountPrices = map[int64]string{
	499:  PriceStarter,
	1299: PricePopular,
}
