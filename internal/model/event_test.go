package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSortEventsCanonicalOrder(t *testing.T) {
	events := []Event{
		{TxHash: "bb", Slot: 10, TxIndex: 0, Rank: 0},
		{TxHash: "aa", Slot: 10, TxIndex: 1, Rank: 0},
		{TxHash: "aa", Slot: 10, TxIndex: 0, OutputIndex: 2, Rank: 0},
		{TxHash: "aa", Slot: 10, TxIndex: 0, OutputIndex: 1, Rank: 3},
		{TxHash: "aa", Slot: 10, TxIndex: 0, OutputIndex: 1, Rank: 1},
		{TxHash: "zz", Slot: 5},
	}
	SortEvents(events)

	type key struct {
		slot uint64
		tx   string
		ix   uint32
		out  uint32
		rank int
	}
	got := make([]key, 0, len(events))
	for _, e := range events {
		got = append(got, key{e.Slot, e.TxHash, e.TxIndex, e.OutputIndex, e.Rank})
	}
	want := []key{
		{5, "zz", 0, 0, 0},
		{10, "aa", 0, 1, 1},
		{10, "aa", 0, 1, 3},
		{10, "aa", 0, 2, 0},
		{10, "bb", 0, 0, 0},
		{10, "aa", 1, 0, 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestEvidenceNormalize(t *testing.T) {
	ev := Evidence{
		Inputs:      []string{"b#1", "a#0", "b#1"},
		PolicyIDs:   []string{""},
		DatumHashes: []string{"ff", "00"},
	}
	ev.Normalize()
	if !reflect.DeepEqual(ev.Inputs, []string{"a#0", "b#1"}) {
		t.Fatalf("inputs = %v", ev.Inputs)
	}
	if ev.PolicyIDs != nil {
		t.Fatalf("expected empty policy list to collapse to nil")
	}
	if !reflect.DeepEqual(ev.DatumHashes, []string{"00", "ff"}) {
		t.Fatalf("datum hashes = %v", ev.DatumHashes)
	}
}

func TestEventJSONOmitsEmptyDetails(t *testing.T) {
	e := Event{Kind: KindStakingRewardClaim, Classification: ClassificationMatched, TxHash: "aa"}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"liquidation", "order", "stability_pool", "reward", "warnings"} {
		if _, ok := decoded[field]; ok {
			t.Fatalf("unexpected field %s in %s", field, b)
		}
	}
	if decoded["ada_equivalent_delta"] != "0.000000000000" {
		t.Fatalf("ada_equivalent_delta = %v", decoded["ada_equivalent_delta"])
	}
	if !KindStakingRewardClaim.Valid() || EventKind("bogus").Valid() {
		t.Fatalf("Valid mismatch")
	}
}
