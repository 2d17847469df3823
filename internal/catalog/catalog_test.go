package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestValidate(t *testing.T) {
	c, err := Default(50_000_000)
	require.NoError(t, err)

	tests := []struct {
		name    string
		purpose domain.Purpose
		months  *int
		amount  int64
		wantErr error
	}{
		{"membership exact price", domain.PurposeMembership, intPtr(1), 10000, nil},
		{"membership wrong price", domain.PurposeMembership, intPtr(1), 1, domain.ErrCatalogMismatch},
		{"membership unlisted duration", domain.PurposeMembership, intPtr(2), 10000, domain.ErrCatalogMismatch},
		{"membership missing duration", domain.PurposeMembership, nil, 10000, domain.ErrInvalidInput},
		{"promotion exact price", domain.PurposePromotion, intPtr(3), 25000, nil},
		{"promotion wrong price", domain.PurposePromotion, intPtr(3), 10000, domain.ErrCatalogMismatch},
		{"topup", domain.PurposeWalletTopup, nil, 50000, nil},
		{"topup with duration", domain.PurposeWalletTopup, intPtr(1), 50000, domain.ErrInvalidInput},
		{"topup above max", domain.PurposeWalletTopup, nil, 50_000_001, domain.ErrInvalidAmount},
		{"zero amount", domain.PurposeWalletTopup, nil, 0, domain.ErrInvalidAmount},
		{"unknown purpose", domain.Purpose("GIFT"), nil, 100, domain.ErrInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := c.Validate(tc.purpose, tc.months, tc.amount)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDurations(t *testing.T) {
	c, err := Default(0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 6, 12}, c.Durations(domain.PurposeMembership))
	assert.Equal(t, []int{1, 3, 6}, c.Durations(domain.PurposePromotion))
	assert.Empty(t, c.Durations(domain.PurposeWalletTopup))
}

func TestLoad_OverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("membership:\n  1: 100000\npromotion:\n  2: 5000\n"), 0o600))

	c, err := Load(path, 0)
	require.NoError(t, err)

	price, ok := c.Price(domain.PurposeMembership, 1)
	require.True(t, ok)
	assert.Equal(t, int64(100000), price)

	_, ok = c.Price(domain.PurposeMembership, 6)
	assert.False(t, ok)

	assert.ErrorIs(t, c.Validate(domain.PurposeMembership, intPtr(1), 1), domain.ErrCatalogMismatch)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("membership:\n  1: 100\n"), 0)
	assert.Error(t, err, "missing promotion section")

	_, err = Parse([]byte("membership:\n  1: -5\npromotion:\n  1: 5\n"), 0)
	assert.Error(t, err)

	_, err = Parse([]byte("membership: [1, 2"), 0)
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "50000", FormatAmount(50000, 0))
	assert.Equal(t, "500.00", FormatAmount(50000, 2))
	assert.Equal(t, "0.05", FormatAmount(5, 2))
}
