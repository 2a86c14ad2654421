package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/volgate/volgate/internal/domain"
	"github.com/volgate/volgate/internal/engine"
	httpiface "github.com/volgate/volgate/internal/interfaces/http"
	"github.com/volgate/volgate/internal/surface"
)

var (
	evaluateInput  string
	evaluateFormat string
	evaluateCommit bool
)

// evaluateCmd scores one candidate from a YAML fixture
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the admission pipeline for one candidate fixture",
	Long: `Evaluate a candidate described by a YAML fixture file: the candidate legs
and coordinates, the layered penalty surfaces, and the market snapshot.

Example usage:
  volgate evaluate --input fixtures/spy_calendar.yaml
  volgate evaluate --input fixtures/spy_calendar.yaml --commit --format=json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateInput, "input", "", "Path to the candidate fixture (required)")
	evaluateCmd.Flags().StringVar(&evaluateFormat, "format", "table", "Output format: table, json")
	evaluateCmd.Flags().BoolVar(&evaluateCommit, "commit", false, "Admit the candidate into the bin on a passing outcome")
	_ = evaluateCmd.MarkFlagRequired("input")
}

// fixture is the YAML form of one evaluation request.
type fixture struct {
	Candidate domain.Candidate          `yaml:"candidate"`
	Surfaces  []httpiface.SurfaceSpec   `yaml:"surfaces"`
	Market    domain.MarketSnapshot     `yaml:"market"`
	Account   domain.AccountSnapshot    `yaml:"account"`
	Events    []domain.DisjunctionEvent `yaml:"events"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(evaluateInput)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}
	var fix fixture
	if err := yaml.Unmarshal(data, &fix); err != nil {
		return fmt.Errorf("failed to parse fixture YAML: %w", err)
	}

	layers := make([]surface.Surface, 0, len(fix.Surfaces))
	for _, spec := range fix.Surfaces {
		layer, err := spec.Build()
		if err != nil {
			return err
		}
		layers = append(layers, layer)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	equity := flagEquity
	if fix.Account.Equity > 0 {
		equity = fix.Account.Equity
	}
	eng, err := engine.New(cfg, equity)
	if err != nil {
		return fmt.Errorf("failed to wire engine: %w", err)
	}

	decision, err := eng.EvaluateCandidate(engine.Request{
		Candidate: fix.Candidate,
		Surfaces:  layers,
		Market:    fix.Market,
		Account:   fix.Account,
		Events:    fix.Events,
		Commit:    evaluateCommit,
	})
	if err != nil {
		return err
	}

	switch strings.ToLower(evaluateFormat) {
	case "json":
		return outputJSON(decision)
	default:
		return outputTable(decision)
	}
}

func outputJSON(d *engine.Decision) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func outputTable(d *engine.Decision) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Symbol:\t%s\n", d.Symbol)
	fmt.Fprintf(w, "Outcome:\t%s\n", d.Outcome)
	fmt.Fprintf(w, "Confidence:\t%.4f\n", d.Confidence)
	fmt.Fprintf(w, "Surface score:\t%.4f\n", d.SurfaceScore)
	fmt.Fprintf(w, "Flag severity:\t%s\n", d.Flags.Severity)
	if d.Path != nil {
		if d.Path.Found {
			fmt.Fprintf(w, "Path cost:\t%.4f over %d layers\n", d.Path.Cost, d.Path.Layers)
		} else {
			fmt.Fprintf(w, "Path:\tno admissible route\n")
		}
	}
	if d.Risk != nil && d.Risk.ThrottleScale < 1 {
		fmt.Fprintf(w, "Sizing scale:\t%.0f%%\n", d.Risk.ThrottleScale*100)
	}
	if d.Admission != nil {
		fmt.Fprintf(w, "Admitted:\t%s (cost %.2f)\n", d.Admission.ID, d.Admission.CostBasis)
	}
	for _, reason := range d.Reasons {
		fmt.Fprintf(w, "Reason:\t%s\n", reason)
	}

	return w.Flush()
}
