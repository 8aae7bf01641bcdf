package service

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceableIDs(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	millis := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))

	orderID, err := NewOrderID(now)
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-`+millis+`-[0-9A-Z]{5}$`, orderID)

	saleID, err := NewSaleID(now)
	require.NoError(t, err)
	assert.Regexp(t, `^SALE-`+millis+`-[0-9A-Z]{5}$`, saleID)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := NewOrderID(now)
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestGenerateUserID(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"Sri Balaji Traders", `^sribalajitraders\d{1,3}$`},
		{"A-1 Stores", `^a1stores\d{1,3}$`},
		{"Ünïcode Ltd", `^ncodeltd\d{1,3}$`},
		{"!!!", `^partner\d{1,3}$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GenerateUserID(tt.name)
			require.NoError(t, err)
			assert.Regexp(t, tt.pattern, id)
		})
	}
}

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Za-z0-9]{12}$`, pw)
}
