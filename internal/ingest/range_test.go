package ingest

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(6, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Range{
		{From: 0, To: 1},
		{From: 2, To: 3},
		{From: 4, To: 5},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Range{{From: 0, To: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeEmpty(t *testing.T) {
	got, err := SplitRange(0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no ranges, got %+v", got)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if _, err := SplitRange(-1, 3); err == nil {
		t.Fatalf("expected error for negative length")
	}
}

func TestBatches(t *testing.T) {
	got, err := Batches([]string{"a", "b", "c", "d", "e"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}
}
