package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFigureMarshalFixedPrecision(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", `"0.000000000000"`},
		{"8.888888888888888", `"8.888888888889"`},
		{"-1.5", `"-1.500000000000"`},
		{"0.0000000000005", `"0.000000000000"`},
		{"0.0000000000015", `"0.000000000002"`},
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		b, err := json.Marshal(NewFigure(d))
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.in, err)
		}
		if string(b) != tc.want {
			t.Fatalf("figure %s: got %s want %s", tc.in, b, tc.want)
		}
	}
}

func TestFigureUnmarshal(t *testing.T) {
	var f Figure
	if err := json.Unmarshal([]byte(`"12.5"`), &f); err != nil {
		t.Fatalf("unmarshal quoted: %v", err)
	}
	if !f.Decimal().Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected value %s", f)
	}
	if err := json.Unmarshal([]byte(`3`), &f); err != nil {
		t.Fatalf("unmarshal bare: %v", err)
	}
	if err := json.Unmarshal([]byte(`"abc"`), &f); err == nil {
		t.Fatalf("expected error for invalid figure")
	}
}

func TestParseQuantity(t *testing.T) {
	d, err := ParseQuantity(" 1000000 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.IntPart() != 1000000 {
		t.Fatalf("unexpected quantity %s", d)
	}
	if _, err := ParseQuantity("1.5"); err == nil {
		t.Fatalf("expected non-integral error")
	}
	if _, err := ParseQuantity("x"); err == nil {
		t.Fatalf("expected parse error")
	}
	q := NewQuantity(decimal.NewFromInt(-100))
	b, _ := json.Marshal(q)
	if string(b) != `"-100"` {
		t.Fatalf("unexpected quantity json %s", b)
	}
}
