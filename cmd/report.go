package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/format"
	"github.com/nncert/nncert/store"
)

func ReportHandler(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = envconfig.DBPath()
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		return listRuns(db)
	}

	return showRun(db, args[0])
}

func listRuns(db *store.Store) error {
	runs, err := db.Runs()
	if err != nil {
		return err
	}

	var data [][]string
	for _, run := range runs {
		summary, err := db.Summarize(run.ID)
		if err != nil {
			return err
		}

		data = append(data, []string{
			run.ID[:8],
			run.Device,
			run.Version,
			format.HumanTime(run.Started, "Never"),
			fmt.Sprintf("%d passed, %d skipped, %d failed", summary.Passed, summary.Skipped, summary.Failed),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"RUN", "DEVICE", "VERSION", "STARTED", "RESULTS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func showRun(db *store.Store, prefix string) error {
	run, err := db.FindRun(prefix)
	if err != nil {
		return err
	}

	results, err := db.Results(run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("run %s  device %s  started %s\n\n", run.ID[:8], run.Device, format.HumanTime(run.Started, "Never"))

	var data [][]string
	for _, r := range results {
		data = append(data, []string{
			r.Model,
			r.Kind,
			strings.ToUpper(r.Verdict),
			r.Duration.Round(time.Millisecond).String(),
			firstLine(r.Reason),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"MODEL", "KIND", "VERDICT", "TIME", "NOTE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	summary, err := db.Summarize(run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n%d checks: %d passed, %d skipped, %d failed\n",
		summary.Total(), summary.Passed, summary.Skipped, summary.Failed)

	return nil
}
