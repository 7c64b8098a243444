package conformance

import (
	"errors"
	"fmt"

	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/tolerance"
)

// Verdict is the tri-state outcome of an evaluation. Skipped is a
// first-class result, not a failure: a driver may decline work it
// never claimed to support.
type Verdict int

const (
	Passed Verdict = iota
	Skipped
	Failed
)

func (v Verdict) String() string {
	switch v {
	case Passed:
		return "passed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Result is the outcome of one scenario evaluation.
type Result struct {
	Model   string
	Config  TestConfig
	Verdict Verdict

	// SkipReason is set when Verdict is Skipped.
	SkipReason string

	// Driver-reported outcome of the dispatched execution.
	Status       hal.ErrorStatus
	OutputShapes []hal.OutputShape
	Timing       hal.Timing

	// Reports holds per-output comparisons when execution got far
	// enough to produce data.
	Reports []*tolerance.Report

	// Err carries all contract violations of this scenario.
	Err error
}

// violations accumulates non-fatal contract breaches. The evaluation
// keeps going so one scenario reports everything wrong with it, the
// way a full assertion log would.
type violations struct {
	errs []error
}

func (v *violations) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *violations) add(err error) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}

func (v *violations) join() error {
	return errors.Join(v.errs...)
}

// fail finalizes the result after an unrecoverable breach, folding in
// any violations collected before it.
func (r *Result) fail(v *violations, err error) *Result {
	v.add(err)
	r.Verdict = Failed
	r.Err = v.join()
	return r
}

// finish settles the verdict from the collected violations.
func (r *Result) finish(v *violations) *Result {
	if err := v.join(); err != nil {
		r.Verdict = Failed
		r.Err = err
	}
	return r
}

// skip finalizes the result as skipped. Violations collected before
// the skip decision still fail the scenario: a driver that breaks the
// timing contract then bails is not conforming.
func (r *Result) skip(v *violations, reason string) *Result {
	if err := v.join(); err != nil {
		r.Verdict = Failed
		r.Err = err
		return r
	}
	r.Verdict = Skipped
	r.SkipReason = reason
	return r
}

// Outcome aggregates one model's run under one test kind.
type Outcome struct {
	Model   string
	Kind    TestKind
	Verdict Verdict

	// SkipReason is set when the whole run was skipped before or
	// during evaluation.
	SkipReason string

	// Err is set on prepare-phase or structural failures, and on
	// evaluation failures joined across scenarios.
	Err error

	Results []*Result
}

// settle derives the aggregate verdict: failed if any scenario failed,
// skipped if any skipped, passed otherwise.
func (o *Outcome) settle() *Outcome {
	var errs []error
	skipped := false
	for _, r := range o.Results {
		switch r.Verdict {
		case Failed:
			errs = append(errs, fmt.Errorf("%s: %w", r.Config, r.Err))
		case Skipped:
			skipped = true
			if o.SkipReason == "" {
				o.SkipReason = r.SkipReason
			}
		}
	}

	switch {
	case len(errs) > 0:
		o.Verdict = Failed
		o.Err = errors.Join(errs...)
	case skipped:
		o.Verdict = Skipped
	default:
		o.Verdict = Passed
	}
	return o
}
