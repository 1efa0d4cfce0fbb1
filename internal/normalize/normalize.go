// Package normalize turns raw indexer responses into per-transaction views.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// Result is the normalized record set.
type Result struct {
	Views []model.TxView
	// Warnings are record-level problems that could not be attached to a view.
	Warnings       []model.Warning
	ResolvedDatums int
}

// Normalizer parses raw records. It holds no state between calls.
type Normalizer struct {
	network model.NetworkParams
	logger  *zap.Logger
}

func New(network model.NetworkParams, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if network.Name == "" {
		network = model.Network("mainnet")
	}
	return &Normalizer{network: network, logger: logger}
}

// Normalize parses records with mainnet slot parameters.
func Normalize(records []model.RawRecord) *Result {
	return New(model.Network("mainnet"), nil).Normalize(records)
}

type txBuilder struct {
	view      model.TxView
	hasSlot   bool
	hasTime   bool
	hasIndex  bool
	hasDetail bool
	sources   []string
}

type listingMeta struct {
	epoch       *int64
	blockHeight *int64
	blockTime   *int64
}

// Normalize parses every record in content-hash order so the result does not
// depend on the order records were fetched in.
func (n *Normalizer) Normalize(records []model.RawRecord) *Result {
	sorted := append([]model.RawRecord(nil), records...)
	model.SortRecords(sorted)

	res := &Result{}
	txs := make(map[string]*txBuilder)
	listings := make(map[string]listingMeta)
	datums := make(datumTable)

	builder := func(hash string) *txBuilder {
		b, ok := txs[hash]
		if !ok {
			b = &txBuilder{view: model.TxView{TxHash: hash}}
			txs[hash] = b
		}
		return b
	}

	for _, rec := range sorted {
		switch rec.Endpoint {
		case model.EndpointAddressTxs, model.EndpointAccountTxs:
			var rows []model.KoiosTxListing
			if err := json.Unmarshal(rec.Payload, &rows); err != nil {
				res.Warnings = append(res.Warnings, unparseable(rec, err))
				continue
			}
			for _, row := range rows {
				hash := normHash(row.TxHash)
				if hash == "" {
					continue
				}
				meta := listings[hash]
				if meta.epoch == nil {
					meta.epoch = row.EpochNo
				}
				if meta.blockHeight == nil {
					meta.blockHeight = row.BlockHeight
				}
				if meta.blockTime == nil {
					meta.blockTime = row.BlockTime
				}
				listings[hash] = meta
			}

		case model.EndpointTxInfo:
			var rows []model.KoiosTxInfo
			if err := json.Unmarshal(rec.Payload, &rows); err != nil {
				res.Warnings = append(res.Warnings, unparseable(rec, err))
				continue
			}
			for _, row := range rows {
				hash := normHash(row.TxHash)
				if hash == "" {
					continue
				}
				b := builder(hash)
				b.sources = append(b.sources, rec.Hash)
				b.mergeInfo(row, datums)
			}

		case model.EndpointTxUtxos:
			var rows []model.KoiosTxUtxos
			if err := json.Unmarshal(rec.Payload, &rows); err != nil {
				res.Warnings = append(res.Warnings, unparseable(rec, err))
				continue
			}
			for _, row := range rows {
				hash := normHash(row.TxHash)
				if hash == "" {
					continue
				}
				b := builder(hash)
				b.sources = append(b.sources, rec.Hash)
				b.mergeUtxos(row, datums)
			}

		case model.EndpointDatumInfo:
			var rows []model.KoiosDatumInfo
			if err := json.Unmarshal(rec.Payload, &rows); err != nil {
				res.Warnings = append(res.Warnings, unparseable(rec, err))
				continue
			}
			for _, row := range rows {
				if _, mismatch := datums.add(row.DatumHash, row.Bytes, row.Value); mismatch {
					res.Warnings = append(res.Warnings, model.NewWarning(model.WarnDatumHashMismatch,
						"datum %s: bytes do not hash to the datum hash (record %s)", row.DatumHash, rec.Hash))
				}
			}

		case model.EndpointAccountAddrs:
			// consumed by ingestion to expand the scope

		default:
			res.Warnings = append(res.Warnings, model.NewWarning(model.WarnUnparseable,
				"record %s: unknown endpoint %q", rec.Hash, rec.Endpoint))
		}
	}

	// Listings without detail still produce a view so the transaction is accounted for.
	for hash := range listings {
		builder(hash)
	}

	views := make([]model.TxView, 0, len(txs))
	for hash, b := range txs {
		n.finish(b, listings[hash], datums, res)
		views = append(views, b.view)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Slot != views[j].Slot {
			return views[i].Slot < views[j].Slot
		}
		return views[i].TxHash < views[j].TxHash
	})
	res.Views = views

	n.logger.Debug("normalized records",
		zap.Int("records", len(sorted)),
		zap.Int("views", len(views)),
		zap.Int("datums", res.ResolvedDatums),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

func (b *txBuilder) mergeInfo(row model.KoiosTxInfo, datums datumTable) {
	v := &b.view
	if !b.hasSlot && row.AbsoluteSlot != nil {
		v.Slot = *row.AbsoluteSlot
		b.hasSlot = true
	}
	if !b.hasTime && row.TxTimestamp != nil {
		v.Timestamp = *row.TxTimestamp
		b.hasTime = true
	}
	if !b.hasIndex && row.TxBlockIndex != nil {
		v.TxIndex = *row.TxBlockIndex
		b.hasIndex = true
	}
	if v.Epoch == nil {
		v.Epoch = row.EpochNo
	}
	if v.BlockHeight == nil {
		v.BlockHeight = row.BlockHeight
	}
	if len(v.Inputs) == 0 && len(row.Inputs) > 0 {
		v.Inputs = b.utxos(row.Inputs, datums)
		b.hasDetail = true
	}
	if len(v.Outputs) == 0 && len(row.Outputs) > 0 {
		v.Outputs = b.utxos(row.Outputs, datums)
		b.hasDetail = true
	}
	if len(v.Mint) == 0 && len(row.AssetsMinted) > 0 {
		v.Mint = b.assets(row.AssetsMinted, "mint")
	}
	if len(v.Withdrawals) == 0 && len(row.Withdrawals) > 0 {
		for _, w := range row.Withdrawals {
			amount, err := parseLovelace(w.Amount)
			if err != nil {
				b.warn(model.WarnUnparseable, "withdrawal from %s: %v", w.StakeAddr, err)
				continue
			}
			v.Withdrawals = append(v.Withdrawals, model.Withdrawal{StakeAddress: w.StakeAddr, Lovelace: amount})
		}
		sort.SliceStable(v.Withdrawals, func(i, j int) bool {
			return v.Withdrawals[i].StakeAddress < v.Withdrawals[j].StakeAddress
		})
	}
	if len(v.Metadata) == 0 && len(row.Metadata) > 0 && string(row.Metadata) != "null" {
		v.Metadata = row.Metadata
	}
	if len(v.Redeemers) == 0 && len(row.PlutusContracts) > 0 {
		v.Redeemers = redeemers(row.PlutusContracts, datums)
	}
}

func (b *txBuilder) mergeUtxos(row model.KoiosTxUtxos, datums datumTable) {
	v := &b.view
	if len(v.Inputs) == 0 && len(row.Inputs) > 0 {
		v.Inputs = b.utxos(row.Inputs, datums)
		b.hasDetail = true
	}
	if len(v.Outputs) == 0 && len(row.Outputs) > 0 {
		v.Outputs = b.utxos(row.Outputs, datums)
		b.hasDetail = true
	}
}

func redeemers(contracts []model.KoiosPlutusContract, datums datumTable) []model.Redeemer {
	out := make([]model.Redeemer, 0, len(contracts))
	for _, c := range contracts {
		r := model.Redeemer{
			ScriptHash: strings.ToLower(c.ScriptHash),
			Address:    c.Address,
		}
		if c.SpendsInput != nil {
			r.SpendsInput = model.OutRef(normHash(c.SpendsInput.TxHash), c.SpendsInput.TxIndex)
		}
		if c.Input != nil {
			if c.Input.Redeemer != nil {
				r.Purpose = c.Input.Redeemer.Purpose
				if c.Input.Redeemer.Datum != nil {
					r.Value = c.Input.Redeemer.Datum.Value
				}
			}
			if c.Input.Datum != nil {
				r.DatumHash = strings.ToLower(c.Input.Datum.Hash)
				datums.add(c.Input.Datum.Hash, "", c.Input.Datum.Value)
			}
		}
		if r.Purpose == "" {
			r.Purpose = "spend"
			if r.SpendsInput == "" {
				r.Purpose = "unknown"
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SpendsInput != out[j].SpendsInput {
			return out[i].SpendsInput < out[j].SpendsInput
		}
		return out[i].ScriptHash < out[j].ScriptHash
	})
	return out
}

func (b *txBuilder) utxos(rows []model.KoiosUtxo, datums datumTable) []model.UtxoView {
	out := make([]model.UtxoView, 0, len(rows))
	for _, u := range rows {
		ref := model.OutRef(normHash(u.TxHash), u.TxIndex)
		lovelace, err := parseLovelace(u.Value)
		if err != nil {
			b.warn(model.WarnUnparseable, "utxo %s value: %v", ref, err)
		}
		view := model.UtxoView{
			Ref:         ref,
			Address:     u.PaymentAddr.Bech32,
			PaymentCred: strings.ToLower(u.PaymentAddr.Cred),
			Lovelace:    lovelace,
			Assets:      b.assets(u.AssetList, ref),
		}
		if u.StakeAddr != nil {
			view.StakeAddress = *u.StakeAddr
		}
		view.Datum = b.datumRef(u, ref, datums)
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ref < out[j].Ref
	})
	return out
}

func (b *txBuilder) datumRef(u model.KoiosUtxo, ref string, datums datumTable) *model.DatumRef {
	hash := ""
	if u.DatumHash != nil {
		hash = strings.ToLower(strings.TrimSpace(*u.DatumHash))
	}
	if u.InlineDatum != nil {
		d := &model.DatumRef{Hash: hash, Inline: true, Bytes: u.InlineDatum.Bytes, Value: u.InlineDatum.Value}
		if hash == "" {
			d.Resolved = true
			return d
		}
		ok, mismatch := datums.add(hash, u.InlineDatum.Bytes, u.InlineDatum.Value)
		if mismatch {
			b.warn(model.WarnDatumHashMismatch, "inline datum of %s does not hash to %s", ref, hash)
			d.Bytes, d.Value = "", nil
			return d
		}
		d.Resolved = ok
		return d
	}
	if hash == "" {
		return nil
	}
	return &model.DatumRef{Hash: hash}
}

func (b *txBuilder) assets(rows []model.KoiosAsset, where string) []model.AssetAmount {
	if len(rows) == 0 {
		return nil
	}
	out := make([]model.AssetAmount, 0, len(rows))
	for _, a := range rows {
		qty, err := model.ParseQuantity(a.Quantity)
		if err != nil {
			b.warn(model.WarnUnparseable, "%s asset %s%s: %v", where, a.PolicyID, a.AssetName, err)
			continue
		}
		out = append(out, model.AssetAmount{
			PolicyID:  strings.ToLower(a.PolicyID),
			AssetName: strings.ToLower(a.AssetName),
			Quantity:  model.NewQuantity(qty),
		})
	}
	model.SortAssets(out)
	return out
}

func (b *txBuilder) warn(code, format string, args ...any) {
	b.view.Warnings = append(b.view.Warnings, model.NewWarning(code, format, args...))
}

// finish applies listing metadata, resolves datum references and fills the slot
// or timestamp from the other via the network slot clock.
func (n *Normalizer) finish(b *txBuilder, meta listingMeta, datums datumTable, res *Result) {
	v := &b.view
	if !b.hasTime && meta.blockTime != nil {
		v.Timestamp = *meta.blockTime
		b.hasTime = true
	}
	if v.Epoch == nil {
		v.Epoch = meta.epoch
	}
	if v.BlockHeight == nil {
		v.BlockHeight = meta.blockHeight
	}
	switch {
	case b.hasSlot && !b.hasTime:
		v.Timestamp = n.network.SlotToTime(v.Slot)
	case !b.hasSlot && b.hasTime:
		v.Slot = n.network.TimeToSlot(v.Timestamp)
	case !b.hasSlot && !b.hasTime:
		b.warn(model.WarnUnparseable, "transaction %s has no slot or block time", v.TxHash)
	}
	if !b.hasDetail {
		b.warn(model.WarnUnresolvedReference, "transaction %s detail was not fetched", v.TxHash)
	}

	resolve := func(utxos []model.UtxoView) {
		for i := range utxos {
			d := utxos[i].Datum
			if d == nil || d.Resolved {
				continue
			}
			body, ok := datums.lookup(d.Hash)
			if !ok {
				b.warn(model.WarnUnresolvedReference, "datum %s of %s not resolved", d.Hash, utxos[i].Ref)
				continue
			}
			d.Resolved = true
			d.Bytes = body.bytes
			d.Value = body.value
			res.ResolvedDatums++
		}
	}
	resolve(v.Inputs)
	resolve(v.Outputs)

	v.Sources = uniqueStrings(b.sources)
}

func unparseable(rec model.RawRecord, err error) model.Warning {
	return model.NewWarning(model.WarnUnparseable, "record %s (%s): %v", rec.Hash, rec.Endpoint, err)
}

func parseLovelace(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lovelace %q", text)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative lovelace %q", text)
	}
	return v, nil
}

func normHash(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	j := 0
	for i, v := range out {
		if i > 0 && v == out[j-1] {
			continue
		}
		out[j] = v
		j++
	}
	return out[:j]
}
