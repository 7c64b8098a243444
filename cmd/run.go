package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nncert/nncert/api"
	"github.com/nncert/nncert/conformance"
	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/logutil"
	"github.com/nncert/nncert/progress"
	"github.com/nncert/nncert/store"
	"github.com/nncert/nncert/version"
)

// openDevice resolves a driver endpoint. A URL reaches a conformance
// server over its HTTP bridge, a bare name opens a registered in
// process driver.
func openDevice(ctx context.Context, name string) (hal.Device, error) {
	if strings.Contains(name, "://") {
		base, err := url.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("parse device url %q: %w", name, err)
		}
		return api.NewClient(base, http.DefaultClient).Device(ctx)
	}

	return hal.Open(name)
}

func parseKinds(s string) ([]conformance.TestKind, error) {
	if s == "" || s == "all" {
		return []conformance.TestKind{
			conformance.KindGeneral,
			conformance.KindDynamicShape,
			conformance.KindQuantizationCoupling,
		}, nil
	}

	var kinds []conformance.TestKind
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "general":
			kinds = append(kinds, conformance.KindGeneral)
		case "dynamic_shape":
			kinds = append(kinds, conformance.KindDynamicShape)
		case "quantization_coupling":
			kinds = append(kinds, conformance.KindQuantizationCoupling)
		default:
			return nil, fmt.Errorf("unknown kind %q, want general, dynamic_shape, quantization_coupling or all", name)
		}
	}

	return kinds, nil
}

func filterModels(models []*corpus.TestModel, filter string) []*corpus.TestModel {
	if filter == "" {
		return models
	}

	var matched []*corpus.TestModel
	for _, m := range models {
		if strings.Contains(m.Name, filter) {
			matched = append(matched, m)
		}
	}
	return matched
}

// resultOf flattens an outcome into its stored form.
func resultOf(o *conformance.Outcome, d time.Duration) store.Result {
	r := store.Result{
		Model:    o.Model,
		Kind:     o.Kind.String(),
		Verdict:  o.Verdict.String(),
		Duration: d,
	}

	switch o.Verdict {
	case conformance.Skipped:
		r.Reason = o.SkipReason
	case conformance.Failed:
		if o.Err != nil {
			r.Reason = o.Err.Error()
		}
	}

	return r
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func RunHandler(cmd *cobra.Command, args []string) error {
	logutil.Init(envconfig.LogLevel())

	name, _ := cmd.Flags().GetString("device")
	if name == "" {
		name = envconfig.Device()
	}

	kindFlag, _ := cmd.Flags().GetString("kind")
	kinds, err := parseKinds(kindFlag)
	if err != nil {
		return err
	}

	filter, _ := cmd.Flags().GetString("filter")
	models := filterModels(corpus.All(), filter)
	if len(models) == 0 {
		// a near-miss filter gets a suggestion
		if _, err := corpus.Get(filter); err != nil {
			return err
		}
		return fmt.Errorf("no corpus models match %q", filter)
	}

	device, err := openDevice(cmd.Context(), name)
	if err != nil {
		return err
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = envconfig.DBPath()
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.BeginRun(device.Name(), version.Version)
	if err != nil {
		return err
	}

	type job struct {
		model *corpus.TestModel
		kind  conformance.TestKind
	}
	var jobs []job
	for _, kind := range kinds {
		for _, m := range models {
			if conformance.Applies(kind, m) {
				jobs = append(jobs, job{m, kind})
			}
		}
	}

	// rejection checks for the deliberately malformed corpus models
	// ride along on a full run
	var rejections []*corpus.TestModel
	if kindFlag == "" || kindFlag == "all" {
		for _, m := range models {
			if m.ExpectFailure {
				rejections = append(rejections, m)
			}
		}
	}

	var p *progress.Progress
	var bar *progress.Bar
	var spinner *progress.Spinner
	if term.IsTerminal(int(os.Stderr.Fd())) {
		p = progress.NewProgress(os.Stderr)
		defer p.StopAndClear()

		bar = progress.NewBar(fmt.Sprintf("evaluating %s", device.Name()), int64(len(jobs)+len(rejections)), 0)
		p.Add(bar)
		spinner = progress.NewSpinner("")
		p.Add(spinner)
	}

	results := make([]store.Result, 0, len(jobs)+len(rejections))
	record := func(r store.Result) error {
		if err := db.AddResult(run.ID, r); err != nil {
			return err
		}
		results = append(results, r)
		if bar != nil {
			bar.Set(int64(len(results)))
		}
		return nil
	}

	for _, j := range jobs {
		if spinner != nil {
			spinner.SetMessage(fmt.Sprintf("%s %s", j.model.Name, j.kind))
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), envconfig.ExecTimeout())
		started := time.Now()
		o := conformance.Execute(ctx, device, j.model, j.kind)
		cancel()

		if err := record(resultOf(o, time.Since(started))); err != nil {
			return err
		}
	}

	for _, m := range rejections {
		if spinner != nil {
			spinner.SetMessage(fmt.Sprintf("%s validation", m.Name))
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), envconfig.ExecTimeout())
		started := time.Now()
		err := conformance.CheckRejection(ctx, device, m)
		cancel()

		r := store.Result{
			Model:    m.Name,
			Kind:     "validation",
			Verdict:  conformance.Passed.String(),
			Duration: time.Since(started),
		}
		if err != nil {
			r.Verdict = conformance.Failed.String()
			r.Reason = err.Error()
		}

		if err := record(r); err != nil {
			return err
		}
	}

	if err := db.FinishRun(run.ID); err != nil {
		return err
	}

	if p != nil {
		p.StopAndClear()
	}

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

	fmt.Printf("\n%d checks: %d passed, %d skipped, %d failed (run %s)\n",
		summary.Total(), summary.Passed, summary.Skipped, summary.Failed, run.ID[:8])

	if summary.Failed > 0 {
		return fmt.Errorf("%s does not conform: %d of %d checks failed", device.Name(), summary.Failed, summary.Total())
	}

	return nil
}
