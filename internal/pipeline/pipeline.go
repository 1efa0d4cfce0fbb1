// Package pipeline turns a scope's raw records into a fingerprinted evidence payload.
package pipeline

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/aggregate"
	"github.com/gorusys/indigo-proof-of-yield/internal/classify"
	"github.com/gorusys/indigo-proof-of-yield/internal/evidence"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/normalize"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

// ToolVersion is stamped into provenance. Overridden at build time with -ldflags.
var ToolVersion = "0.1.0-dev"

// Config fixes every input of a computation besides the records.
type Config struct {
	Scope    model.Scope
	Protocol model.Protocol
}

// Stats summarizes one computation for logs and provenance.
type Stats struct {
	Records        int
	Views          int
	Events         int
	ResolvedDatums int
	RecordWarnings []model.Warning
}

type Pipeline struct {
	cfg        Config
	network    model.NetworkParams
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

func New(cfg Config, metrics *telemetry.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Protocol = cfg.Protocol.Normalize()
	network := model.Network(cfg.Protocol.Network)
	return &Pipeline{
		cfg:        cfg,
		network:    network,
		normalizer: normalize.New(network, logger.Named("normalize")),
		classifier: classify.New(cfg.Protocol, metrics, logger.Named("classify")),
		metrics:    metrics,
		logger:     logger,
	}
}

// Compute derives the payload from records. The payload is a pure function of
// the records and the pipeline config.
func (p *Pipeline) Compute(records []model.RawRecord) (model.Payload, Stats) {
	started := time.Now()
	defer p.metrics.Stage("compute", started)

	sorted := append([]model.RawRecord(nil), records...)
	model.SortRecords(sorted)

	norm := p.normalizer.Normalize(sorted)
	for _, w := range norm.Warnings {
		p.metrics.Warning(w.Code)
		p.logger.Warn("record skipped", zap.String("code", w.Code), zap.String("detail", w.Detail))
	}
	events := p.classifier.Classify(norm.Views, p.cfg.Scope)
	if events == nil {
		events = []model.Event{}
	}
	metrics := aggregate.Compute(events, p.cfg.Scope, aggregate.Options{Network: p.network})

	payload := model.Payload{
		Schema: model.BundleSchema,
		Scope:  p.cfg.Scope,
		Parameters: model.Parameters{
			Protocol:        p.cfg.Protocol,
			FigurePrecision: model.FigurePrecision,
			Network:         p.network.Name,
		},
		Events:  events,
		Metrics: metrics,
		Sources: sources(sorted, norm.Views),
	}
	stats := Stats{
		Records:        len(sorted),
		Views:          len(norm.Views),
		Events:         len(events),
		ResolvedDatums: norm.ResolvedDatums,
		RecordWarnings: norm.Warnings,
	}
	p.logger.Info("payload computed",
		zap.Int("records", stats.Records),
		zap.Int("views", stats.Views),
		zap.Int("events", stats.Events),
		zap.Int("resolved_datums", stats.ResolvedDatums),
	)
	return payload, stats
}

// Digest computes and fingerprints the payload.
func (p *Pipeline) Digest(records []model.RawRecord) (model.Payload, evidence.Digest, error) {
	payload, _ := p.Compute(records)
	_, digest, err := evidence.PayloadDigest(payload)
	return payload, digest, err
}

func sources(records []model.RawRecord, views []model.TxView) model.Sources {
	out := model.Sources{
		RecordHashes: make([]string, 0, len(records)),
		TxHashes:     make([]string, 0, len(views)),
	}
	for _, rec := range records {
		out.RecordHashes = append(out.RecordHashes, rec.Hash)
	}
	for _, v := range views {
		out.TxHashes = append(out.TxHashes, v.TxHash)
	}
	sort.Strings(out.TxHashes)
	return out
}

// ProvenanceInput carries the run facts kept outside the fingerprint.
type ProvenanceInput struct {
	Records  int
	Requests int64
	Offline  bool
	Now      time.Time
	RunID    string
}

// NewProvenance stamps run metadata. A random run id is generated when none is given.
func NewProvenance(in ProvenanceInput) model.Provenance {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return model.Provenance{
		ToolVersion: ToolVersion,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		RunID:       runID,
		Records:     in.Records,
		Requests:    in.Requests,
		Offline:     in.Offline,
	}
}

// NewBundle wraps a payload with its provenance.
func NewBundle(payload model.Payload, provenance model.Provenance) model.Bundle {
	return model.Bundle{
		Schema:     model.BundleSchema,
		Payload:    payload,
		Provenance: provenance,
	}
}
