package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyFromAny(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Money
	}{
		{"nil is zero", nil, 0},
		{"int64", int64(150000000), 150000000},
		{"int", int(42), 42},
		{"float64 rounds", float64(99.6), 100},
		{"float64 negative", float64(-10.4), -10},
		{"numeric bytes", []byte("2500000"), 2500000},
		{"numeric string", "123456", 123456},
		{"decimal string rounds", "99.5", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MoneyFromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoneyFromAnyRejectsGarbage(t *testing.T) {
	_, err := MoneyFromAny("not a number")
	require.Error(t, err)

	_, err = MoneyFromAny(struct{}{})
	require.Error(t, err)
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money(200_000_000)
	b := Money(300_000_000)
	assert.Equal(t, Money(500_000_000), a.Add(b))
	assert.Equal(t, int64(200000000), a.Int64())
	assert.Equal(t, "200000000", a.String())
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(int64(1)))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(float64(1)))
	assert.True(t, Truthy("1"))
	assert.True(t, Truthy(true))

	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(int64(0)))
	assert.False(t, Truthy("0"))
	assert.False(t, Truthy(false))
}
