package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hotload/internal/module"
)

// statusCmd loads the workspace and shows the engine's records
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load the workspace and show records, tracked files, and applications",
	RunE:  showStatus,
}

type recordStatus struct {
	File     string    `json:"file"`
	Symbols  []string  `json:"symbols"`
	SubUnits []string  `json:"sub_units,omitempty"`
	ModTime  time.Time `json:"mtime"`
}

type appStatus struct {
	Name       string    `json:"name"`
	Entry      string    `json:"entry"`
	Mount      string    `json:"mount,omitempty"`
	Reloads    int       `json:"reloads"`
	ReloadedAt time.Time `json:"reloaded_at,omitempty"`
}

type statusReport struct {
	Tracked      int            `json:"tracked"`
	Symbols      int            `json:"symbols"`
	Records      []recordStatus `json:"records"`
	Applications []appStatus    `json:"applications"`
}

func collectStatus(e *engine) statusReport {
	tracked := e.reloader.Tracked()
	report := statusReport{
		Tracked:      len(tracked),
		Symbols:      e.rt.Symbols.Len(),
		Records:      []recordStatus{},
		Applications: []appStatus{},
	}
	for _, rec := range e.reloader.Records() {
		rs := recordStatus{File: e.rel(rec.File), ModTime: tracked[rec.File]}
		for _, id := range rec.Symbols.Sorted() {
			rs.Symbols = append(rs.Symbols, string(id))
		}
		for _, f := range module.SortedPaths(rec.Features) {
			rs.SubUnits = append(rs.SubUnits, e.rel(f))
		}
		report.Records = append(report.Records, rs)
	}
	for _, a := range e.apps.All() {
		n, at := a.Stats()
		report.Applications = append(report.Applications, appStatus{
			Name:       a.Name(),
			Entry:      e.rel(a.EntryFile()),
			Mount:      a.Mount(),
			Reloads:    n,
			ReloadedAt: at,
		})
	}
	sort.Slice(report.Applications, func(i, j int) bool {
		return report.Applications[i].Name < report.Applications[j].Name
	})
	return report
}

func showStatus(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	if _, err := e.reloader.ReloadAll(commandContext(cmd)); err != nil {
		return err
	}
	report := collectStatus(e)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Workspace: %s\n", e.workspace)
	fmt.Fprintf(out, "Tracked files: %d, symbols: %d\n\n", report.Tracked, report.Symbols)

	rows := make([][]string, 0, len(report.Records))
	for _, rec := range report.Records {
		rows = append(rows, []string{
			rec.File,
			strconv.Itoa(len(rec.Symbols)),
			strconv.Itoa(len(rec.SubUnits)),
			rec.ModTime.Format(time.RFC3339),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"File", "Symbols", "Sub-units", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))

	if len(report.Applications) == 0 {
		return nil
	}
	appRows := make([][]string, 0, len(report.Applications))
	for _, a := range report.Applications {
		appRows = append(appRows, []string{a.Name, a.Entry, a.Mount, strconv.Itoa(a.Reloads)})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Application", "Entry", "Mount", "Reloads"},
		appRows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}
