package model

// BundleSchema identifies the evidence bundle layout.
const BundleSchema = "indigo-poy/bundle/v1"

// Sources lists the raw records a payload was derived from.
type Sources struct {
	RecordHashes []string `json:"record_hashes"`
	TxHashes     []string `json:"tx_hashes"`
}

// Parameters records every input besides the records that influences the payload.
type Parameters struct {
	Protocol        Protocol `json:"protocol"`
	FigurePrecision int      `json:"figure_precision"`
	Network         string   `json:"network"`
}

// Payload is the fingerprinted region of a bundle. It must be a pure function of its inputs.
type Payload struct {
	Schema     string     `json:"schema"`
	Scope      Scope      `json:"scope"`
	Parameters Parameters `json:"parameters"`
	Events     []Event    `json:"events"`
	Metrics    Metrics    `json:"metrics"`
	Sources    Sources    `json:"sources"`
}

// Provenance carries run metadata kept outside the fingerprint.
type Provenance struct {
	ToolVersion string `json:"tool_version"`
	GeneratedAt string `json:"generated_at"`
	RunID       string `json:"run_id"`
	Records     int    `json:"records"`
	Requests    int64  `json:"requests"`
	Offline     bool   `json:"offline"`
}

// Bundle is the serialized evidence artifact.
type Bundle struct {
	Schema     string     `json:"schema"`
	Payload    Payload    `json:"payload"`
	Provenance Provenance `json:"provenance"`
}
