// Package ingest pulls every raw record a scope needs through the cache.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gorusys/indigo-proof-of-yield/internal/chain"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

// Source is the cache handle the runner reads through.
type Source interface {
	GetOrFetch(ctx context.Context, q model.Query) (model.RawRecord, error)
}

// RunConfig holds the settings of one scope ingestion.
type RunConfig struct {
	Scope            model.Scope
	Network          model.NetworkParams
	Workers          int
	PageLimit        int
	TxBatchSize      int
	DatumBatchSize   int
	AddressBatchSize int
}

// Result is the record set of one scope.
type Result struct {
	Records   []model.RawRecord
	Addresses []string
	TxHashes  []string
	Datums    []string
}

// Runner walks the listing, detail and datum endpoints for a scope.
type Runner struct {
	cfg     RunConfig
	source  Source
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	records map[string]model.RawRecord
}

func NewRunner(cfg RunConfig, source Source, metrics *telemetry.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = model.DefaultPageLimit
	}
	if cfg.TxBatchSize <= 0 {
		cfg.TxBatchSize = model.DefaultTxBatchSize
	}
	if cfg.DatumBatchSize <= 0 {
		cfg.DatumBatchSize = model.DefaultDatumBatchSize
	}
	if cfg.AddressBatchSize <= 0 {
		cfg.AddressBatchSize = model.DefaultAddressBatchSize
	}
	if cfg.Network.Name == "" {
		cfg.Network = model.Network("mainnet")
	}
	return &Runner{
		cfg:     cfg,
		source:  source,
		metrics: metrics,
		logger:  logger,
		records: make(map[string]model.RawRecord),
	}
}

// Run fetches the scope. The result does not depend on fetch completion order.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.source == nil {
		return Result{}, fmt.Errorf("record source is nil")
	}
	scope := r.cfg.Scope
	if len(scope.Addresses) == 0 && scope.StakeAddress == "" {
		return Result{}, fmt.Errorf("scope needs an address or a stake address")
	}
	started := time.Now()
	defer r.metrics.Stage("ingest", started)

	addresses := scope.Addresses
	if scope.StakeAddress != "" {
		extra, err := r.accountAddresses(ctx, scope.StakeAddress)
		if err != nil {
			return Result{}, fmt.Errorf("account addresses: %w", err)
		}
		addresses = scope.WithAddresses(extra).Addresses
	}
	r.logger.Info("scope addresses", zap.Int("addresses", len(addresses)), zap.String("stake_address", scope.StakeAddress))

	txs, err := r.listTransactions(ctx, scope.StakeAddress, addresses)
	if err != nil {
		return Result{}, fmt.Errorf("list transactions: %w", err)
	}
	r.logger.Info("transactions listed", zap.Int("txs", len(txs)))

	details, err := r.fetchBatches(ctx, txs, r.cfg.TxBatchSize, chain.TxInfoQuery)
	if err != nil {
		return Result{}, fmt.Errorf("tx info: %w", err)
	}

	if incomplete := incompleteTxs(details); len(incomplete) > 0 {
		r.logger.Info("tx info without utxos", zap.Int("txs", len(incomplete)))
		utxos, err := r.fetchBatches(ctx, incomplete, r.cfg.TxBatchSize, chain.TxUtxosQuery)
		if err != nil {
			return Result{}, fmt.Errorf("tx utxos: %w", err)
		}
		details = append(details, utxos...)
	}

	datums := referencedDatums(details)
	if _, err := r.fetchBatches(ctx, datums, r.cfg.DatumBatchSize, chain.DatumInfoQuery); err != nil {
		return Result{}, fmt.Errorf("datum info: %w", err)
	}

	res := Result{
		Records:   r.collected(),
		Addresses: addresses,
		TxHashes:  txs,
		Datums:    datums,
	}
	r.logger.Info("ingest complete",
		zap.Int("records", len(res.Records)),
		zap.Int("txs", len(txs)),
		zap.Int("datums", len(datums)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (r *Runner) get(ctx context.Context, q model.Query) (model.RawRecord, error) {
	rec, err := r.source.GetOrFetch(ctx, q)
	if err != nil {
		return model.RawRecord{}, err
	}
	r.mu.Lock()
	r.records[rec.Hash] = rec
	r.mu.Unlock()
	return rec, nil
}

func (r *Runner) collected() []model.RawRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RawRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	model.SortRecords(out)
	return out
}

// pages requests offset pages until one comes back short.
func (r *Runner) pages(ctx context.Context, build func(offset, limit int) model.Query, visit func(json.RawMessage) (int, error)) error {
	for offset := 0; ; offset += r.cfg.PageLimit {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.get(ctx, build(offset, r.cfg.PageLimit))
		if err != nil {
			return err
		}
		n, err := visit(rec.Payload)
		if err != nil {
			return fmt.Errorf("decode %s page at offset %d: %w", rec.Endpoint, offset, err)
		}
		if n < r.cfg.PageLimit {
			return nil
		}
	}
}

func (r *Runner) accountAddresses(ctx context.Context, stake string) ([]string, error) {
	var out []string
	err := r.pages(ctx, func(offset, limit int) model.Query {
		return chain.AccountAddressesQuery(stake, offset, limit)
	}, func(payload json.RawMessage) (int, error) {
		var rows []model.KoiosAccountAddresses
		if err := json.Unmarshal(payload, &rows); err != nil {
			return 0, err
		}
		n := 0
		for _, row := range rows {
			n += len(row.Addresses)
			out = append(out, row.Addresses...)
		}
		return n, nil
	})
	return out, err
}

// listTransactions returns the sorted, de-duplicated hashes of in-window transactions.
func (r *Runner) listTransactions(ctx context.Context, stake string, addresses []string) ([]string, error) {
	from, to := r.cfg.Scope.Window.TimeBounds(r.cfg.Network)
	seen := make(map[string]struct{})
	var skipped int
	visit := func(payload json.RawMessage) (int, error) {
		var rows []model.KoiosTxListing
		if err := json.Unmarshal(payload, &rows); err != nil {
			return 0, err
		}
		for _, row := range rows {
			if row.BlockTime != nil {
				if (from != nil && *row.BlockTime < *from) || (to != nil && *row.BlockTime > *to) {
					skipped++
					continue
				}
			}
			hash := strings.ToLower(strings.TrimSpace(row.TxHash))
			if hash != "" {
				seen[hash] = struct{}{}
			}
		}
		return len(rows), nil
	}

	if stake != "" {
		err := r.pages(ctx, func(offset, limit int) model.Query {
			return chain.AccountTxsQuery(stake, offset, limit)
		}, visit)
		if err != nil {
			return nil, err
		}
	}

	batches, err := Batches(addresses, r.cfg.AddressBatchSize)
	if err != nil {
		return nil, err
	}
	for _, batch := range batches {
		err := r.pages(ctx, func(offset, limit int) model.Query {
			return chain.AddressTxsQuery(batch, offset, limit)
		}, visit)
		if err != nil {
			return nil, err
		}
	}

	if skipped > 0 {
		r.logger.Debug("listings outside window", zap.Int("skipped", skipped))
	}
	out := make([]string, 0, len(seen))
	for hash := range seen {
		out = append(out, hash)
	}
	sort.Strings(out)
	return out, nil
}

// fetchBatches fans batch queries out over the worker pool.
func (r *Runner) fetchBatches(ctx context.Context, items []string, size int, build func([]string) model.Query) ([]model.RawRecord, error) {
	batches, err := Batches(items, size)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawRecord, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			rec, err := r.get(gctx, build(batch))
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// incompleteTxs lists transactions whose tx_info rows came back without inputs
// or outputs.
func incompleteTxs(records []model.RawRecord) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		var txs []model.KoiosTxInfo
		if err := json.Unmarshal(rec.Payload, &txs); err != nil {
			continue
		}
		for _, tx := range txs {
			if len(tx.Inputs) > 0 && len(tx.Outputs) > 0 {
				continue
			}
			if hash := strings.ToLower(strings.TrimSpace(tx.TxHash)); hash != "" {
				seen[hash] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for hash := range seen {
		out = append(out, hash)
	}
	sort.Strings(out)
	return out
}

// referencedDatums lists datum hashes referenced by UTxOs without an inline body.
func referencedDatums(records []model.RawRecord) []string {
	seen := make(map[string]struct{})
	add := func(utxos []model.KoiosUtxo) {
		for _, u := range utxos {
			if u.DatumHash == nil || u.InlineDatum != nil {
				continue
			}
			if hash := strings.ToLower(strings.TrimSpace(*u.DatumHash)); hash != "" {
				seen[hash] = struct{}{}
			}
		}
	}
	for _, rec := range records {
		var txs []model.KoiosTxInfo
		if err := json.Unmarshal(rec.Payload, &txs); err != nil {
			continue
		}
		for _, tx := range txs {
			add(tx.Inputs)
			add(tx.Outputs)
		}
	}
	out := make([]string, 0, len(seen))
	for hash := range seen {
		out = append(out, hash)
	}
	sort.Strings(out)
	return out
}
