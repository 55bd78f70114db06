package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotload/internal/reload"
)

// reloadCmd runs a single reload pass
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Run one reload pass and report what was loaded",
	Long: `Runs one pass over the configured roots and applications. A fresh process
has no baseline, so every candidate loads. The command fails if any unit
fails to load; the failed unit is rolled back.`,
	RunE: runReload,
}

func runReload(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	res, err := e.reloader.ReloadAll(commandContext(cmd))
	if err != nil {
		logger.Error("Reload failed", zap.String("pass", res.PassID), zap.Error(err))
		return err
	}
	logger.Debug("Reload pass complete",
		zap.String("pass", res.PassID),
		zap.Int("scanned", res.Scanned),
		zap.Duration("duration", res.Duration))

	out := cmd.OutOrStdout()
	if !res.Changed() {
		fmt.Fprintln(out, "Nothing to load")
		return nil
	}
	fmt.Fprintln(out, renderTable(
		[]string{"File", "Status", "Symbols"},
		loadedRows(e, res),
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	fmt.Fprintf(out, "%d files loaded, %d applications reloaded in %s\n",
		len(res.Loaded), len(res.Apps), res.Duration.Round(time.Microsecond))
	return nil
}

func loadedRows(e *engine, res reload.Result) [][]string {
	counts := make(map[string]int)
	for _, rec := range e.reloader.Records() {
		counts[rec.File] = len(rec.Symbols)
	}
	isNew := make(map[string]bool, len(res.New))
	for _, f := range res.New {
		isNew[f] = true
	}
	rows := make([][]string, 0, len(res.Loaded))
	for _, f := range res.Loaded {
		status := reload.StatusModified.String()
		if isNew[f] {
			status = reload.StatusNew.String()
		}
		rows = append(rows, []string{e.rel(f), status, strconv.Itoa(counts[f])})
	}
	return rows
}
