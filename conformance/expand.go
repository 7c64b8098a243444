package conformance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

// scenarioConfigs expands a test kind into its scenario grid: output
// type outermost, then timing measurement, then call path. The
// general grid is 1x2x3, the dynamic shape grid 2x2x3.
func scenarioConfigs(kind TestKind, reportSkipping bool) []TestConfig {
	var outputTypes []OutputType
	switch kind {
	case KindGeneral, KindQuantizationCoupling:
		outputTypes = []OutputType{OutputFullySpecified}
	case KindDynamicShape:
		outputTypes = []OutputType{OutputUnspecified, OutputInsufficient}
	}

	var configs []TestConfig
	for _, outputType := range outputTypes {
		for _, measure := range []bool{false, true} {
			for _, executor := range []Executor{ExecutorAsync, ExecutorSync, ExecutorBurst} {
				configs = append(configs, TestConfig{
					Executor:       executor,
					MeasureTiming:  measure,
					OutputType:     outputType,
					ReportSkipping: reportSkipping,
				})
			}
		}
	}
	return configs
}

// evaluateScenarios runs every scenario of the grid. Scenarios are
// independent: a failed or skipped one does not stop the rest.
func evaluateScenarios(ctx context.Context, prepared hal.PreparedModel, m *corpus.TestModel, kind TestKind) []*Result {
	configs := scenarioConfigs(kind, true)
	results := make([]*Result, 0, len(configs))
	for _, config := range configs {
		results = append(results, EvaluatePrepared(ctx, prepared, m, config))
	}
	return results
}

// evaluateCoupled runs a model and its signed counterpart through the
// same grid and requires them to skip in lockstep. A skip mismatch
// aborts the run as a failure; a matched skip aborts it as a skip.
func evaluateCoupled(ctx context.Context, prepared hal.PreparedModel, m *corpus.TestModel,
	preparedCoupled hal.PreparedModel, coupled *corpus.TestModel) (results []*Result, skipped bool, err error) {

	for _, config := range scenarioConfigs(KindQuantizationCoupling, false) {
		base := EvaluatePrepared(ctx, prepared, m, config)
		results = append(results, base)

		counterpart := EvaluatePrepared(ctx, preparedCoupled, coupled, config)
		results = append(results, counterpart)

		baseSkipped := base.Verdict == Skipped
		coupledSkipped := counterpart.Verdict == Skipped
		if baseSkipped != coupledSkipped {
			return results, false, fmt.Errorf("%s: %s skipped=%t but %s skipped=%t",
				config, m.Name, baseSkipped, coupled.Name, coupledSkipped)
		}
		if baseSkipped {
			slog.Info("early termination: driver cannot execute a model it does not support",
				"model", m.Name, "config", config)
			return results, true, nil
		}
	}
	return results, false, nil
}
