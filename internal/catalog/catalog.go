// Package catalog holds the fixed price list for time-bounded purchases.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	prices   map[domain.Purpose]map[int]int64
	topupMax int64
}

type file struct {
	Membership map[int]int64 `yaml:"membership"`
	Promotion  map[int]int64 `yaml:"promotion"`
}

// Default returns the built-in catalog.
func Default(topupMax int64) (*Catalog, error) {
	return Parse(defaultCatalog, topupMax)
}

// Load reads the catalog from path, or the built-in one when path is empty.
func Load(path string, topupMax int64) (*Catalog, error) {
	if path == "" {
		return Default(topupMax)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog.Load: %w", err)
	}
	c, err := Parse(data, topupMax)
	if err != nil {
		return nil, fmt.Errorf("catalog.Load: %w", err)
	}
	return c, nil
}

func Parse(data []byte, topupMax int64) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog.Parse: %w", err)
	}

	c := &Catalog{
		prices: map[domain.Purpose]map[int]int64{
			domain.PurposeMembership: f.Membership,
			domain.PurposePromotion:  f.Promotion,
		},
		topupMax: topupMax,
	}
	for purpose, byMonths := range c.prices {
		if len(byMonths) == 0 {
			return nil, fmt.Errorf("catalog.Parse: no prices for %s", purpose)
		}
		for months, price := range byMonths {
			if months <= 0 || price <= 0 {
				return nil, fmt.Errorf("catalog.Parse: %s: invalid entry %d months at %d", purpose, months, price)
			}
		}
	}
	return c, nil
}

// Price returns the listed price for a purpose and duration.
func (c *Catalog) Price(purpose domain.Purpose, months int) (int64, bool) {
	p, ok := c.prices[purpose][months]
	return p, ok
}

// Durations lists the purchasable durations for purpose in ascending order.
func (c *Catalog) Durations(purpose domain.Purpose) []int {
	var out []int
	for m := range c.prices[purpose] {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Validate checks an intent request against the price list. Top-ups carry no
// duration and are bounded by the configured maximum.
func (c *Catalog) Validate(purpose domain.Purpose, months *int, amount int64) error {
	if !purpose.IsValid() {
		return fmt.Errorf("Validate: unknown purpose %q: %w", purpose, domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("Validate: %w", domain.ErrInvalidAmount)
	}

	if !purpose.RequiresDuration() {
		if months != nil {
			return fmt.Errorf("Validate: %s takes no duration: %w", purpose, domain.ErrInvalidInput)
		}
		if c.topupMax > 0 && amount > c.topupMax {
			return fmt.Errorf("Validate: top-up above %d: %w", c.topupMax, domain.ErrInvalidAmount)
		}
		return nil
	}

	if months == nil {
		return fmt.Errorf("Validate: %s requires a duration: %w", purpose, domain.ErrInvalidInput)
	}
	price, ok := c.Price(purpose, *months)
	if !ok {
		return fmt.Errorf("Validate: %s has no %d month option (offered %v): %w", purpose, *months, c.Durations(purpose), domain.ErrCatalogMismatch)
	}
	if price != amount {
		return fmt.Errorf("Validate: %s %d months costs %d, got %d: %w", purpose, *months, price, amount, domain.ErrCatalogMismatch)
	}
	return nil
}

// FormatAmount renders minor units as a decimal string with exp fraction digits.
func FormatAmount(amount int64, exp int32) string {
	return decimal.New(amount, -exp).StringFixed(exp)
}
