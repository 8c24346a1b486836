package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"grimm.is/bootcheck/internal/history"
)

// DefaultHistoryDB is where run history lands unless configured otherwise.
func DefaultHistoryDB() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "bootcheck-history.db"
	}
	return filepath.Join(cache, "bootcheck", "history.db")
}

// RunHistory prints recent runs, or the per-case flakiness report with
// -flaky.
func RunHistory(dbPath string, limit int, flaky bool) error {
	if dbPath == "" {
		dbPath = DefaultHistoryDB()
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no run history at %s", dbPath)
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if flaky {
		return printHealth(store)
	}
	return printRecent(store, limit)
}

func printRecent(store *history.Store, limit int) error {
	runs, err := store.Recent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSUITE\tARCH\tRESULT\tPASS/TOTAL\tDURATION\tID")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.Started.Local().Format("2006-01-02 15:04"),
			r.Suite, r.Architecture, r.Overall,
			r.Passed, r.Total, r.Duration.Round(time.Second), shortID(r.ID))
	}
	return w.Flush()
}

func printHealth(store *history.Store) error {
	health, err := store.Health()
	if err != nil {
		return err
	}
	if len(health) == 0 {
		fmt.Println("No case history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tGRADE\tPASS/RUNS\tRATE\tSTREAK\tLAST RUN")
	for _, h := range health {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.0f%%\t%d\t%s\n",
			h.Name, h.Grade, h.PassCount, h.TotalRuns,
			h.PassRate*100, h.Streak,
			h.LastRun.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
