package ingest

import "fmt"

// Range is an inclusive index range into a list.
type Range struct {
	From int
	To   int
}

// SplitRange splits the n indexes [0, n) into ranges of at most batchSize.
func SplitRange(n, batchSize int) ([]Range, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if n < 0 {
		return nil, fmt.Errorf("length must not be negative")
	}

	ranges := make([]Range, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		end := start + batchSize - 1
		if end >= n {
			end = n - 1
		}
		ranges = append(ranges, Range{From: start, To: end})
	}
	return ranges, nil
}

// Batches groups items by SplitRange.
func Batches(items []string, batchSize int) ([][]string, error) {
	ranges, err := SplitRange(len(items), batchSize)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, items[r.From:r.To+1])
	}
	return out, nil
}
