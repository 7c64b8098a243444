package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nncert/nncert/conformance"
	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/store"
)

func TestParseKinds(t *testing.T) {
	all := []conformance.TestKind{
		conformance.KindGeneral,
		conformance.KindDynamicShape,
		conformance.KindQuantizationCoupling,
	}

	cases := []struct {
		in      string
		want    []conformance.TestKind
		wantErr bool
	}{
		{in: "", want: all},
		{in: "all", want: all},
		{in: "general", want: []conformance.TestKind{conformance.KindGeneral}},
		{in: "dynamic_shape", want: []conformance.TestKind{conformance.KindDynamicShape}},
		{in: "general, quantization_coupling", want: []conformance.TestKind{conformance.KindGeneral, conformance.KindQuantizationCoupling}},
		{in: "bogus", wantErr: true},
		{in: "general,bogus", wantErr: true},
	}

	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseKinds(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseKinds(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseKinds(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestFilterModels(t *testing.T) {
	models := corpus.All()

	if got := filterModels(models, ""); len(got) != len(models) {
		t.Errorf("empty filter kept %d of %d models", len(got), len(models))
	}

	for _, m := range filterModels(models, "add") {
		if !strings.Contains(m.Name, "add") {
			t.Errorf("filter %q matched %q", "add", m.Name)
		}
	}

	if got := filterModels(models, "no_such_model"); len(got) != 0 {
		t.Errorf("filter matched %d models, want 0", len(got))
	}
}

func TestFirstLine(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"single line", "single line"},
		{"first\nsecond", "first ..."},
	}
	for _, tt := range cases {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResultOf(t *testing.T) {
	failed := &conformance.Outcome{
		Model:   "add_float32",
		Kind:    conformance.KindGeneral,
		Verdict: conformance.Failed,
		Err:     errors.New("output 0 differs"),
	}
	r := resultOf(failed, 0)
	if r.Verdict != "failed" || r.Reason != "output 0 differs" {
		t.Errorf("failed outcome stored as %+v", r)
	}

	skipped := &conformance.Outcome{
		Model:      "conv2d_per_channel_quant8",
		Kind:       conformance.KindGeneral,
		Verdict:    conformance.Skipped,
		SkipReason: "driver does not support CONV_2D",
	}
	r = resultOf(skipped, 0)
	if r.Verdict != "skipped" || r.Reason != "driver does not support CONV_2D" {
		t.Errorf("skipped outcome stored as %+v", r)
	}

	passed := &conformance.Outcome{Model: "add_float32", Kind: conformance.KindDynamicShape}
	r = resultOf(passed, 0)
	if r.Verdict != "passed" || r.Reason != "" || r.Kind != "dynamic_shape" {
		t.Errorf("passed outcome stored as %+v", r)
	}
}

func TestRunRecordsResults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cli := NewCLI()
	cli.SetArgs([]string{"run", "--device", "soft", "--kind", "general", "--filter", "add_float32", "--db", dbPath})
	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Device != "soft" {
		t.Errorf("run device = %q, want %q", runs[0].Device, "soft")
	}
	if runs[0].Finished.IsZero() {
		t.Error("run was not finished")
	}

	results, err := db.Results(runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Model != "add_float32" || results[0].Kind != "general" || results[0].Verdict != "passed" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestRunRecordsRejectionChecks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cli := NewCLI()
	cli.SetArgs([]string{"run", "--device", "soft", "--filter", "add_mismatched_activation", "--db", dbPath})
	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	results, err := db.Results(runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Kind != "validation" || results[0].Verdict != "passed" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestRunErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "unknown kind",
			args: []string{"run", "--kind", "bogus"},
			want: "unknown kind",
		},
		{
			name: "unknown filter",
			args: []string{"run", "--device", "soft", "--filter", "reshape_float33"},
			want: "reshape_float32",
		},
		{
			name: "unknown device",
			args: []string{"run", "--device", "bogus", "--filter", "add_float32", "--kind", "general"},
			want: "unknown driver",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cli := NewCLI()
			cli.SetArgs(tt.args)
			err := cli.ExecuteContext(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestReportShowsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cli := NewCLI()
	cli.SetArgs([]string{"run", "--device", "soft", "--kind", "dynamic_shape", "--filter", "reshape_float32", "--db", dbPath})
	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	cli = NewCLI()
	cli.SetArgs([]string{"report", "--db", dbPath})
	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := db.Runs()
	db.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	cli = NewCLI()
	cli.SetArgs([]string{"report", "--db", dbPath, runs[0].ID[:8]})
	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	cli = NewCLI()
	cli.SetArgs([]string{"report", "--db", dbPath, "ffffffff"})
	if err := cli.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected an error for an unknown run prefix")
	}
}
