package types

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a currency amount in whole Uganda shillings (UGX carries no minor
// unit). Integer arithmetic keeps exposure sums exact across repeated
// aggregation; the original system's float totals are not reproduced.
type Money int64

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return m + other
}

// Int64 returns the amount as a raw shilling count.
func (m Money) Int64() int64 {
	return int64(m)
}

// Float64 converts the amount for ratio calculations (averages, rates).
// Never feed the result back into an exposure sum.
func (m Money) Float64() float64 {
	return float64(m)
}

// String formats the amount as a plain integer.
func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Value implements driver.Valuer for bound query parameters.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan implements sql.Scanner for NUMBER columns surfaced by the driver.
func (m *Money) Scan(src any) error {
	v, err := MoneyFromAny(src)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MoneyFromAny converts a value from a relational row or graph record into
// Money. NULL converts to zero. Fractional shillings round half away from
// zero; they only appear when an upstream query divides.
func MoneyFromAny(v any) (Money, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case Money:
		return val, nil
	case int64:
		return Money(val), nil
	case int:
		return Money(val), nil
	case int32:
		return Money(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("cannot convert %v to money", val)
		}
		return Money(math.Round(val)), nil
	case float32:
		return MoneyFromAny(float64(val))
	case []byte:
		return parseMoneyString(string(val))
	case string:
		return parseMoneyString(val)
	default:
		return 0, fmt.Errorf("cannot convert %T to money", v)
	}
}

func parseMoneyString(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Money(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as money: %w", s, err)
	}
	return Money(math.Round(f)), nil
}

// Truthy reports whether a flagged-indicator column value is set. Drivers
// surface the CASE expression as int64, float64 or a numeric string
// depending on the engine.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case []byte:
		return truthyString(string(val))
	case string:
		return truthyString(val)
	default:
		return false
	}
}

func truthyString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return false
}
