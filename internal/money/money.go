// Package money provides the fixed-precision decimal type used for every price.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits every Money value carries.
const Precision int32 = 8

// Money is a decimal amount rounded to Precision fractional digits.
// The zero value is 0.00000000.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00000000.
var Zero = Money{}

func fromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Round(Precision)}
}

// Parse reads a decimal string such as "6500" or "0.12345678".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return fromDecimal(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromInt returns an integral amount.
func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// FromDecimal converts an external decimal, rounding to Precision.
func FromDecimal(d decimal.Decimal) Money {
	return fromDecimal(d)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return fromDecimal(m.d.Add(o.d))
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return fromDecimal(m.d.Sub(o.d))
}

// Multiply returns m * o rounded to Precision.
func (m Money) Multiply(o Money) Money {
	return fromDecimal(m.d.Mul(o.d))
}

// Divide returns m / o rounded to Precision.
func (m Money) Divide(o Money) (Money, error) {
	if o.d.IsZero() {
		return Money{}, fmt.Errorf("divide %s by zero", m)
	}
	return Money{d: m.d.DivRound(o.d, Precision)}, nil
}

// DivideInt returns m / n rounded to Precision.
func (m Money) DivideInt(n int64) (Money, error) {
	return m.Divide(FromInt(n))
}

// Abs returns |m|.
func (m Money) Abs() Money {
	return Money{d: m.d.Abs()}
}

// Cmp compares m and o: -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

// Equal reports whether m == o.
func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String always renders Precision fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(Precision)
}

// Mean returns the arithmetic mean of values. It fails on an empty slice.
func Mean(values []Money) (Money, error) {
	if len(values) == 0 {
		return Money{}, fmt.Errorf("mean of empty set")
	}
	sum := Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.DivideInt(int64(len(values)))
}

// MarshalJSON encodes m as a JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*m = parsed
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*m = parsed
	case int64:
		*m = FromInt(v)
	case float64:
		*m = fromDecimal(decimal.NewFromFloat(v))
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	return nil
}
