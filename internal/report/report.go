// Package report renders an evidence bundle as a static HTML page.
package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/evidence"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const lovelacePerAda = 6

var funcs = template.FuncMap{
	"fig": func(f *model.Figure) string {
		if f == nil {
			return "n/a"
		}
		return f.String()
	},
	"ada": func(f model.Figure) string {
		return decimal.Decimal(f).Shift(-lovelacePerAda).StringFixedBank(lovelacePerAda)
	},
	"lovelace": func(v int64) string {
		return decimal.New(v, -lovelacePerAda).StringFixed(lovelacePerAda)
	},
	"pct": func(f *model.Figure) string {
		if f == nil {
			return "n/a"
		}
		return decimal.Decimal(*f).StringFixedBank(2) + "%"
	},
	"annualized": func(f *model.Figure) string {
		if f == nil {
			return "n/a"
		}
		return decimal.Decimal(*f).Shift(2).StringFixedBank(2) + "%"
	},
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(pageTemplate))

type view struct {
	Title   string
	Digest  string
	Scope   model.Scope
	Payload model.Payload
	Prov    model.Provenance
	Bundle  model.Bundle
}

// Render writes the HTML report. The full bundle is embedded as JSON so the page
// can be checked against the digest it shows.
func Render(w io.Writer, bundle model.Bundle, digest evidence.Digest) error {
	v := view{
		Title:   bundle.Payload.Scope.Label(),
		Digest:  digest.Hex(),
		Scope:   bundle.Payload.Scope,
		Payload: bundle.Payload,
		Prov:    bundle.Provenance,
		Bundle:  bundle,
	}
	if err := page.Execute(w, v); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// WriteFile renders the report to path through a temp file and rename.
func WriteFile(path string, bundle model.Bundle, digest evidence.Digest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	if err := Render(tmp, bundle, digest); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8"/>
<meta name="viewport" content="width=device-width,initial-scale=1"/>
<title>Proof of Yield - {{.Title}}</title>
<style>
:root { font-family: system-ui, sans-serif; background: #0f1419; color: #e6edf3; }
body { max-width: 860px; margin: 0 auto; padding: 1.5rem; }
h1 { font-size: 1.4rem; margin-bottom: 0.5rem; }
h2 { font-size: 1.1rem; margin-top: 1.5rem; color: #8b949e; }
.mono { font-family: ui-monospace, monospace; font-size: 0.9em; word-break: break-all; }
.card { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 1rem; margin: 0.5rem 0; }
.grid { display: grid; grid-template-columns: auto 1fr; gap: 0.25rem 1rem; }
.label { color: #8b949e; }
.note { color: #d29922; font-size: 0.85rem; }
table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
td, th { text-align: left; padding: 0.2rem 0.4rem; border-bottom: 1px solid #30363d; }
.footer { margin-top: 2rem; font-size: 0.85rem; color: #8b949e; }
</style>
</head>
<body>
<h1>Proof of Yield Report</h1>
{{range .Scope.Addresses}}<p class="mono">{{.}}</p>{{end}}
{{with .Scope.StakeAddress}}<p class="mono">{{.}}</p>{{end}}
<p>Generated: {{.Prov.GeneratedAt}} &middot; tool {{.Prov.ToolVersion}} &middot; run {{.Prov.RunID}}</p>

<h2>Reproducibility</h2>
<div class="card">
  <div class="mono" id="digest">SHA-256: {{.Digest}}</div>
  <p class="footer">Re-run <code>indigo-poy verify --bundle &lt;file&gt;</code> and compare the digest.</p>
</div>

{{with .Payload.Metrics}}
<h2>Summary</h2>
<div class="card">
  <div class="grid">
    <span class="label">Net flow (ADA)</span><span class="mono">{{ada .NetFlowLovelace}}</span>
    <span class="label">Inflow (ADA)</span><span class="mono">{{ada .InflowLovelace}}</span>
    <span class="label">Outflow (ADA)</span><span class="mono">{{ada .OutflowLovelace}}</span>
    <span class="label">Capital base (ADA)</span><span class="mono">{{ada .CapitalBaseLovelace}}</span>
    <span class="label">Window (days)</span><span class="mono">{{.WindowDays}}</span>
    <span class="label">Annualized return</span><span class="mono">{{annualized .AnnualizedReturn}}</span>
    <span class="label">Events</span><span class="mono">{{.Counts.Total}} ({{.Counts.Unclassified}} unclassified)</span>
    <span class="label">Warnings</span><span class="mono">{{.Warnings}}</span>
  </div>
  {{with .AnnualizedReturnNote}}<p class="note">{{.}}</p>{{end}}
</div>

<h2>Stability Pool</h2>
{{range .Pools}}
<div class="card">
  <div class="grid">
    <span class="label">Pool</span><span class="mono">{{.Pool}}</span>
    <span class="label">Deposits / withdrawals</span><span>{{.Deposits}} / {{.Withdrawals}}</span>
    <span class="label">Deposited / withdrawn (ADA)</span><span class="mono">{{ada .DepositedLovelace}} / {{ada .WithdrawnLovelace}}</span>
    <span class="label">Liquidations</span><span>{{.Liquidations}}</span>
    <span class="label">iAsset burnt</span><span class="mono">{{.IAssetBurnt}}</span>
    <span class="label">ADA received</span><span class="mono">{{ada .AdaReceivedLovelace}}</span>
    <span class="label">Realized premium</span><span class="mono">{{pct .RealizedPremiumPct}}</span>
    <span class="label">Dilution estimate</span><span class="mono">{{fig .DilutionEstimate}}</span>
    <span class="label">Final share</span><span class="mono">{{fig .FinalShare}}</span>
  </div>
  {{with .RealizedPremiumNote}}<p class="note">{{.}}</p>{{end}}
  {{with .DilutionNote}}<p class="note">{{.}}</p>{{end}}
</div>
{{else}}
<div class="card"><p class="label">No stability pool activity.</p></div>
{{end}}

<h2>Redemption Order Book</h2>
<div class="card">
  <div class="grid">
    <span class="label">Placements / fills / cancellations</span><span>{{.Redemption.Placements}} / {{.Redemption.Fills}} / {{.Redemption.Cancellations}}</span>
    <span class="label">Placed (ADA)</span><span class="mono">{{ada .Redemption.PlacedLovelace}}</span>
    <span class="label">Face value filled (ADA)</span><span class="mono">{{ada .Redemption.FaceValueLovelace}}</span>
    <span class="label">Premium received (ADA)</span><span class="mono">{{ada .Redemption.PremiumLovelace}}</span>
    <span class="label">Reimbursement</span><span class="mono">{{pct .Redemption.ReimbursementPct}}</span>
    <span class="label">Mean cooldown (s)</span><span class="mono">{{fig .Redemption.MeanCooldownSeconds}}</span>
  </div>
  {{with .Redemption.ReimbursementNote}}<p class="note">{{.}}</p>{{end}}
</div>

<h2>Staking</h2>
<div class="card">
  <div class="grid">
    <span class="label">Claims</span><span>{{.Staking.Claims}}</span>
    <span class="label">Ledger rewards (ADA)</span><span class="mono">{{ada .Staking.LedgerRewardsLovelace}}</span>
    <span class="label">INDY rewards (ADA)</span><span class="mono">{{ada .Staking.IndyRewardsLovelace}}</span>
    <span class="label">Total rewards (ADA)</span><span class="mono">{{ada .Staking.TotalRewardsLovelace}}</span>
  </div>
</div>
{{end}}

<h2>Events</h2>
<div class="card">
<table>
  <tr><th>Slot</th><th>Tx</th><th>Kind</th><th>Signature</th><th>ADA delta</th><th>Warnings</th></tr>
  {{range .Payload.Events}}
  <tr>
    <td class="mono">{{.Slot}}</td>
    <td class="mono">{{.TxHash}}</td>
    <td>{{.Kind}}</td>
    <td>{{.Signature}}</td>
    <td class="mono">{{ada .AdaEquivalentDelta}}</td>
    <td>{{range .Warnings}}<span class="note">{{.Code}}</span> {{end}}</td>
  </tr>
  {{end}}
</table>
</div>

<h2>Evidence bundle</h2>
<div class="card">
  <p class="footer">The evidence bundle is embedded below. Do not edit.</p>
  <script type="application/json" id="evidence-bundle">{{.Bundle}}</script>
</div>

<div class="footer">
  <p>Generated by indigo-proof-of-yield. Read-only tool; no keys; no signing.</p>
</div>
</body>
</html>
`
