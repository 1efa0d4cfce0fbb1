package model

import (
	"sort"
	"strings"
)

// Window bounds a scope either by ledger slots or by unix timestamps (seconds).
// Bounds are inclusive; nil means open.
type Window struct {
	FromSlot *uint64 `json:"from_slot,omitempty"`
	ToSlot   *uint64 `json:"to_slot,omitempty"`
	FromTime *int64  `json:"from_time,omitempty"`
	ToTime   *int64  `json:"to_time,omitempty"`
}

// IsOpen reports whether the window has no bounds at all.
func (w Window) IsOpen() bool {
	return w.FromSlot == nil && w.ToSlot == nil && w.FromTime == nil && w.ToTime == nil
}

// Contains reports whether a transaction at slot/timestamp falls inside the window.
func (w Window) Contains(slot uint64, timestamp int64) bool {
	if w.FromSlot != nil && slot < *w.FromSlot {
		return false
	}
	if w.ToSlot != nil && slot > *w.ToSlot {
		return false
	}
	if w.FromTime != nil && timestamp < *w.FromTime {
		return false
	}
	if w.ToTime != nil && timestamp > *w.ToTime {
		return false
	}
	return true
}

// TimeBounds resolves the window to unix-second bounds using the network's slot clock.
func (w Window) TimeBounds(network NetworkParams) (from *int64, to *int64) {
	if w.FromTime != nil {
		v := *w.FromTime
		from = &v
	} else if w.FromSlot != nil {
		v := network.SlotToTime(*w.FromSlot)
		from = &v
	}
	if w.ToTime != nil {
		v := *w.ToTime
		to = &v
	} else if w.ToSlot != nil {
		v := network.SlotToTime(*w.ToSlot)
		to = &v
	}
	return from, to
}

// Scope is the address set and time window a run reconstructs.
type Scope struct {
	Addresses    []string `json:"addresses"`
	StakeAddress string   `json:"stake_address,omitempty"`
	Window       Window   `json:"window"`
}

// NewScope trims, de-duplicates and sorts the address set.
func NewScope(addresses []string, stakeAddress string, window Window) Scope {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return Scope{
		Addresses:    out,
		StakeAddress: strings.TrimSpace(stakeAddress),
		Window:       window,
	}
}

// WithAddresses returns a copy of the scope with extra addresses merged in.
func (s Scope) WithAddresses(extra []string) Scope {
	merged := append(append([]string{}, s.Addresses...), extra...)
	return NewScope(merged, s.StakeAddress, s.Window)
}

// HasAddress reports whether addr is one of the scoped payment addresses.
func (s Scope) HasAddress(addr string) bool {
	if addr == "" {
		return false
	}
	i := sort.SearchStrings(s.Addresses, addr)
	return i < len(s.Addresses) && s.Addresses[i] == addr
}

// Touches reports whether a UTxO with the given address and stake address belongs to the scope.
func (s Scope) Touches(addr, stakeAddress string) bool {
	if s.HasAddress(addr) {
		return true
	}
	return s.StakeAddress != "" && stakeAddress == s.StakeAddress
}

// Label returns a short filesystem-safe label for the scope.
func (s Scope) Label() string {
	base := s.StakeAddress
	if base == "" && len(s.Addresses) > 0 {
		base = s.Addresses[0]
	}
	if base == "" {
		return "scope"
	}
	if len(base) > 24 {
		base = base[:24]
	}
	return strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(base)
}

// NetworkParams maps ledger slots to wall-clock time after the Shelley hard fork.
type NetworkParams struct {
	Name          string
	ReferenceSlot uint64
	ReferenceTime int64
	SlotLength    int64
}

var networks = map[string]NetworkParams{
	"mainnet": {Name: "mainnet", ReferenceSlot: 4492800, ReferenceTime: 1596059091, SlotLength: 1},
	"preprod": {Name: "preprod", ReferenceSlot: 86400, ReferenceTime: 1655769600, SlotLength: 1},
	"preview": {Name: "preview", ReferenceSlot: 0, ReferenceTime: 1666656000, SlotLength: 1},
}

// Network returns slot parameters for a named network, defaulting to mainnet.
func Network(name string) NetworkParams {
	if params, ok := networks[strings.ToLower(strings.TrimSpace(name))]; ok {
		return params
	}
	return networks["mainnet"]
}

func (n NetworkParams) SlotToTime(slot uint64) int64 {
	length := n.SlotLength
	if length <= 0 {
		length = 1
	}
	return n.ReferenceTime + (int64(slot)-int64(n.ReferenceSlot))*length
}

func (n NetworkParams) TimeToSlot(ts int64) uint64 {
	length := n.SlotLength
	if length <= 0 {
		length = 1
	}
	delta := (ts - n.ReferenceTime) / length
	slot := int64(n.ReferenceSlot) + delta
	if slot < 0 {
		return 0
	}
	return uint64(slot)
}
