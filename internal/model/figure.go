package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FigurePrecision is the number of decimal places every derived figure carries.
const FigurePrecision = 12

// Figure is a fixed-precision decimal encoded as a quoted string.
type Figure decimal.Decimal

// NewFigure rounds d half-even to FigurePrecision places.
func NewFigure(d decimal.Decimal) Figure {
	return Figure(d.RoundBank(FigurePrecision))
}

// FigureFromInt builds a Figure from an integer amount.
func FigureFromInt(v int64) Figure {
	return Figure(decimal.NewFromInt(v))
}

// FigurePtr is a convenience for optional figures.
func FigurePtr(d decimal.Decimal) *Figure {
	f := NewFigure(d)
	return &f
}

func (f Figure) Decimal() decimal.Decimal {
	return decimal.Decimal(f)
}

func (f Figure) String() string {
	return decimal.Decimal(f).StringFixedBank(FigurePrecision)
}

// MarshalJSON encodes the figure with exactly FigurePrecision decimals.
func (f Figure) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts quoted or bare decimal numbers.
func (f *Figure) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*f = Figure(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("invalid figure %q: %w", text, err)
	}
	*f = Figure(d)
	return nil
}

// Quantity is an integral asset amount encoded as a quoted base-10 string.
type Quantity decimal.Decimal

// NewQuantity truncates d to an integer quantity.
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity(d.Truncate(0))
}

// ParseQuantity parses an on-chain quantity string.
func ParseQuantity(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", text, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("non-integral quantity %q", text)
	}
	return d, nil
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.Decimal(q)
}

func (q Quantity) String() string {
	return decimal.Decimal(q).StringFixed(0)
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "null" {
		text = ""
	}
	d, err := ParseQuantity(text)
	if err != nil {
		return err
	}
	*q = Quantity(d)
	return nil
}
