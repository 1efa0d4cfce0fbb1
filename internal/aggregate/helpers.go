package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const (
	secondsPerDay = 86400
	daysPerYear   = "365.25"
)

var (
	hundred     = decimal.NewFromInt(100)
	yearDays, _ = decimal.NewFromString(daysPerYear)
)

// divisionScale is the working precision for quotients before figures are rounded.
const divisionScale = 24

// ratio returns num/den, or false when den is zero.
func ratio(num, den decimal.Decimal) (decimal.Decimal, bool) {
	if den.IsZero() {
		return decimal.Zero, false
	}
	return num.DivRound(den, divisionScale), true
}

// percent returns num/den*100, or false when den is zero.
func percent(num, den decimal.Decimal) (decimal.Decimal, bool) {
	r, ok := ratio(num, den)
	if !ok {
		return decimal.Zero, false
	}
	return r.Mul(hundred), true
}

// annualize scales a period return to a year of 365.25 days.
func annualize(netFlow, capitalBase, days decimal.Decimal) (*model.Figure, string) {
	if !days.IsPositive() {
		return nil, "window length is zero"
	}
	if !capitalBase.IsPositive() {
		return nil, "capital base is zero"
	}
	r, _ := ratio(netFlow, capitalBase)
	scale, _ := ratio(yearDays, days)
	return model.FigurePtr(r.Mul(scale)), ""
}

func figurePtrOrNil(d decimal.Decimal, ok bool) *model.Figure {
	if !ok {
		return nil
	}
	return model.FigurePtr(d)
}
