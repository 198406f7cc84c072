package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"mightyhooks/internal/journal"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyDB    string
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [route-key]",
	Short: "List recent delivery outcomes from the journal",
	Long: `List the most recent delivery outcomes recorded in the delivery journal.

The journal path is taken from --db or from journal.path in the config.

Example:
  mightyhooks history hooks.example.com/github --limit 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of records to show")
	historyCmd.Flags().StringVar(&historyDB, "db", "", "Path to the journal database (overrides config)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print records as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath := historyDB
	if dbPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.Path == "" {
			return fmt.Errorf("delivery journal is disabled: set journal.path in %s or pass --db", cfg.Path())
		}
		dbPath = cfg.Journal.Path
	}

	var routeKey string
	if len(args) == 1 {
		routeKey = args[0]
	}

	j, err := journal.Open(dbPath, discardLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Recent(cmd.Context(), routeKey, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No deliveries recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tHOOK\tDESTINATION\tSTATUS\tCODE\tDURATION\tERROR")
	for _, r := range records {
		code := "-"
		if r.StatusCode != nil {
			code = fmt.Sprint(*r.StatusCode)
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.RouteKey, r.Destination, r.Status, code, r.DurationMs, errMsg)
	}
	return w.Flush()
}
