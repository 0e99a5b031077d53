package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/pipeline"
	"github.com/sells-group/costdb/internal/table"
)

var (
	runRaw          string
	runStandardized string
	runOut          string
	runJSON         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and regenerate all output tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		in := runInput(runRaw, runStandardized, runOut)
		res, err := env.Pipeline.Run(ctx, in)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", res.RunID),
			zap.Int("canonical_items", res.Summary.CanonicalItems),
			zap.Int("flagged", res.Summary.Flagged),
		)
		return printResult(in, res)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the analytics stages against an existing standardized item table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		in := runInput(runRaw, runStandardized, runOut)
		if in.StandardizedPath == "" {
			in.StandardizedPath = filepath.Join(in.OutputDir, table.StandardizedItemsFile)
		}
		res, err := env.Pipeline.Run(ctx, in)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		return printResult(in, res)
	},
}

var standardizeCmd = &cobra.Command{
	Use:   "standardize",
	Short: "Standardize raw purchase orders and write only the standardized item table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		in := runInput(runRaw, "", runOut)
		res, path, err := env.Pipeline.Standardize(ctx, in)
		if err != nil {
			return eris.Wrap(err, "standardize")
		}

		_, _ = fmt.Fprintf(os.Stdout, "Canonical items: %d (%.2f%% reduction)\n", res.CanonicalItems, res.ReductionPercent)
		_, _ = fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
		return nil
	},
}

// runInput resolves the run locations, preferring flags over config.
func runInput(raw, standardized, out string) model.RunInput {
	in := model.RunInput{
		RawPath:          cfg.Input.RawPath,
		StandardizedPath: cfg.Input.StandardizedPath,
		OutputDir:        cfg.Output.Dir,
	}
	if raw != "" {
		in.RawPath = raw
	}
	if standardized != "" {
		in.StandardizedPath = standardized
	}
	if out != "" {
		in.OutputDir = out
	}
	return in
}

func printResult(in model.RunInput, res *pipeline.Result) error {
	if !runJSON {
		_, err := fmt.Fprint(os.Stdout, pipeline.FormatReport(in, res))
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID   string            `json:"run_id,omitempty"`
		Summary *model.RunSummary `json:"summary"`
		Files   []string          `json:"files"`
	}{res.RunID, res.Summary, res.Files})
}

func init() {
	for _, c := range []*cobra.Command{runCmd, analyzeCmd, standardizeCmd} {
		c.Flags().StringVar(&runRaw, "raw", "", "raw purchase order table (default from config)")
		c.Flags().StringVar(&runOut, "out", "", "output directory (default from config)")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{runCmd, analyzeCmd} {
		c.Flags().StringVar(&runStandardized, "standardized", "", "externally produced standardized item table")
		c.Flags().BoolVar(&runJSON, "json", false, "print the run summary as JSON")
	}
}
