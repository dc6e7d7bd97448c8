package journal

import (
	"bytes"
	"os"
	"text/template"
	"time"
)

// BacktestRun mirrors the backtest_runs table: one row per completed replay,
// with enough context to reproduce it.
type BacktestRun struct {
	RunID   string
	Created time.Time
	Symbol  string
	Days    int
	Config  []byte // full bot config as JSON

	Start time.Time
	End   time.Time

	StartBalance float64
	EndBalance   float64

	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	NetPnL       float64
	ROI          float64
	MaxDrawdown  float64
	ProfitFactor float64
	SharpeRatio  float64

	OrgPath string
	Notes   []string
}

var runOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

// WriteOrg renders the run as an org-mode report at OrgPath.
func (r *BacktestRun) WriteOrg() error {
	t, err := template.New("backtest").Funcs(runOrgFuncs).Parse(runOrgTemplate)
	if err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	if err := t.Execute(buf, r); err != nil {
		return err
	}
	return os.WriteFile(r.OrgPath, buf.Bytes(), 0644)
}

const runOrgTemplate = `
* BACKTEST: {{.Symbol}} {{.Days}}d
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:SYMBOL:      {{.Symbol}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PNL:     {{printf "%.2f" .NetPnL}}
:ROI_PCT:     {{printf "%.2f" .ROI}}
:MAX_DD:      {{printf "%.2f" .MaxDrawdown}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}
:SHARPE:      {{printf "%.2f" .SharpeRatio}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net PnL:          *{{printf "%.2f" .NetPnL}}*
- Return:           *{{printf "%.2f" .ROI}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDrawdown}}*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Profit Factor:    *{{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}*
- Sharpe:           *{{printf "%.2f" .SharpeRatio}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
