package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/costdb/internal/fetcher"
	"github.com/sells-group/costdb/internal/insight"
	"github.com/sells-group/costdb/internal/table"
	"github.com/sells-group/costdb/internal/taxonomy"
)

var (
	insightsFile   string
	insightsOrders string
)

var insightsCmd = &cobra.Command{
	Use:   "insights [text...]",
	Short: "Extract procurement hints from free text",
	Long:  "Reads free text from the arguments, --file, or the item descriptions of a raw purchase order table (--orders) and prints the items, materials, sizes, oil grades and prices it mentions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tax, err := taxonomy.Load(cfg.Standardize.TaxonomyPath)
		if err != nil {
			return eris.Wrap(err, "load taxonomy")
		}
		a := insight.New(tax)
		f := fetcher.New(cfg.FTP)

		var in insight.Insights
		if insightsOrders != "" {
			orders, err := table.LoadRawPurchaseOrders(ctx, f, insightsOrders)
			if err != nil {
				return err
			}
			in = a.AnalyzeOrders(orders)
		} else {
			text, err := insightText(ctx, f, insightsFile, args)
			if err != nil {
				return err
			}
			in = a.Analyze(text)
		}

		writeBullets(os.Stdout, in.Bullets())
		return nil
	},
}

// insightText returns the text to analyze from file, or else args.
func insightText(ctx context.Context, f fetcher.Fetcher, file string, args []string) (string, error) {
	if file == "" {
		if len(args) == 0 {
			return "", eris.New("insights: provide text, --file or --orders")
		}
		return strings.Join(args, " "), nil
	}
	rc, err := f.Open(ctx, file)
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", eris.Wrapf(err, "insights: read %s", file)
	}
	return string(data), nil
}

func writeBullets(w io.Writer, bullets []string) {
	if len(bullets) == 0 {
		_, _ = fmt.Fprintln(w, "No insights found.")
		return
	}
	for _, b := range bullets {
		_, _ = fmt.Fprintf(w, "- %s\n", b)
	}
}

func init() {
	insightsCmd.Flags().StringVar(&insightsFile, "file", "", "text file to analyze (local path, ftp:// or http(s)://)")
	insightsCmd.Flags().StringVar(&insightsOrders, "orders", "", "raw purchase order table whose descriptions are analyzed")
	rootCmd.AddCommand(insightsCmd)
}
