package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/storage/badger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent per-account outcomes",
	RunE:  runHistory,
}

var (
	historyLimit  int
	historyFormat string
	historyRun    string
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records (0 for all)")
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "Output format: text or yaml")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Only show records of this run ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyFormat != "text" && historyFormat != "yaml" {
		return fmt.Errorf("unsupported format %q, expected text or yaml", historyFormat)
	}
	if err := loadConfig(cmd); err != nil {
		return err
	}

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return err
	}
	storage := badger.NewRunStorage(db, logger)
	defer storage.Close()

	ctx := context.Background()
	var records []models.RunRecord
	if historyRun != "" {
		records, err = storage.ListByRun(ctx, historyRun)
	} else {
		records, err = storage.List(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if historyFormat == "yaml" {
		return writeYAML(os.Stdout, records)
	}
	return writeTable(os.Stdout, records)
}

type historyEntry struct {
	Run      string `yaml:"run"`
	Account  string `yaml:"account"`
	Outcome  string `yaml:"outcome"`
	Message  string `yaml:"message,omitempty"`
	Attempts int    `yaml:"attempts"`
	Finished string `yaml:"finished"`
	Duration string `yaml:"duration"`
}

func toEntries(records []models.RunRecord) []historyEntry {
	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, historyEntry{
			Run:      r.RunID,
			Account:  r.Account,
			Outcome:  string(r.Kind),
			Message:  r.Message,
			Attempts: r.Attempts,
			Finished: r.FinishedAt.Format("2006-01-02 15:04:05"),
			Duration: r.Duration().Round(time.Second).String(),
		})
	}
	return entries
}

func writeYAML(w io.Writer, records []models.RunRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toEntries(records)); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return enc.Close()
}

func writeTable(w io.Writer, records []models.RunRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tACCOUNT\tOUTCOME\tATTEMPTS\tDURATION\tMESSAGE")
	for _, e := range toEntries(records) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", e.Finished, e.Account, e.Outcome, e.Attempts, e.Duration, e.Message)
	}
	return tw.Flush()
}
