package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// ParseBound parses one window bound. A bare number is a ledger slot, "@<n>" is a
// unix timestamp in seconds and anything else must be RFC3339.
func ParseBound(input string) (*uint64, *int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, nil
	}

	if isNumeric(input) {
		slot, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid slot %q: %w", input, err)
		}
		return &slot, nil, nil
	}

	if strings.HasPrefix(input, "@") && isNumeric(input[1:]) {
		ts, err := strconv.ParseInt(input[1:], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid unix time %q: %w", input, err)
		}
		return nil, &ts, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid time %q: expected slot, @unix or RFC3339", input)
	}
	ts := tm.Unix()
	return nil, &ts, nil
}

// ParseWindow parses the from/to bounds into a window.
func ParseWindow(from, to string) (model.Window, error) {
	var w model.Window
	var err error
	if w.FromSlot, w.FromTime, err = ParseBound(from); err != nil {
		return model.Window{}, fmt.Errorf("from: %w", err)
	}
	if w.ToSlot, w.ToTime, err = ParseBound(to); err != nil {
		return model.Window{}, fmt.Errorf("to: %w", err)
	}
	if w.FromSlot != nil && w.ToSlot != nil && *w.ToSlot < *w.FromSlot {
		return model.Window{}, fmt.Errorf("to slot must be >= from slot")
	}
	if w.FromTime != nil && w.ToTime != nil && *w.ToTime < *w.FromTime {
		return model.Window{}, fmt.Errorf("to time must be >= from time")
	}
	return w, nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
