// Package tolerance compares driver outputs against golden buffers
// using type-aware criteria: floating point outputs allow 5 ULP of the
// working precision, quantized outputs allow one quantum per element,
// integer and boolean outputs must match exactly.
package tolerance

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

const (
	f32Atol = 1e-5
	f32Rtol = 5.0 * 1.1920928955078125e-7 // 5 ULP of float32
	f16Tol  = 5.0 * 0.0009765625          // 5 ULP of float16
)

// worstKept bounds how many mismatches a report retains.
const worstKept = 10

// Mismatch is one element outside tolerance.
type Mismatch struct {
	Index    int
	Expected float64
	Actual   float64
}

func (m Mismatch) AbsErr() float64 {
	return math.Abs(m.Actual - m.Expected)
}

// Report summarizes the comparison of one output buffer.
type Report struct {
	Output     int
	Elements   int
	Mismatches int
	MaxAbsErr  float64
	MeanAbsErr float64

	// Worst holds up to worstKept mismatches, largest error first.
	Worst []Mismatch
}

func (r *Report) Ok() bool { return r.Mismatches == 0 }

// Criteria is the per-element acceptance rule for one operand type.
type Criteria struct {
	Atol float64
	Rtol float64

	// Quantum is the allowed integer deviation for quantized types.
	// Exact types have quantum 0 and zero float tolerances.
	Quantum float64
}

func (c Criteria) allows(expected, actual float64) bool {
	if math.IsNaN(expected) || math.IsNaN(actual) {
		return math.IsNaN(expected) && math.IsNaN(actual)
	}
	diff := math.Abs(actual - expected)
	return diff <= c.Quantum || diff <= c.Atol+c.Rtol*math.Abs(expected)
}

// ForType returns the acceptance criteria for outputs of type t.
// Relaxed models compare float32 outputs at float16 precision.
func ForType(t hal.OperandType, relaxed bool) Criteria {
	switch t {
	case hal.TensorFloat32, hal.Float32:
		if relaxed {
			return Criteria{Atol: f16Tol, Rtol: f16Tol}
		}
		return Criteria{Atol: f32Atol, Rtol: f32Rtol}
	case hal.TensorFloat16, hal.Float16:
		return Criteria{Atol: f16Tol, Rtol: f16Tol}
	case hal.TensorQuant8Asymm, hal.TensorQuant8AsymmSigned, hal.TensorQuant8Symm,
		hal.TensorQuant16Asymm, hal.TensorQuant16Symm:
		return Criteria{Quantum: 1}
	default:
		return Criteria{}
	}
}

func decode(t hal.OperandType, b *corpus.Buffer) ([]float64, error) {
	switch t {
	case hal.TensorFloat32, hal.Float32:
		values := b.Float32s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorFloat16, hal.Float16:
		values := b.Float16s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v.Float32())
		}
		return out, nil
	case hal.TensorQuant8Asymm:
		values := b.Quant8s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorQuant8AsymmSigned, hal.TensorQuant8Symm:
		values := b.Int8s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorQuant16Asymm:
		values := b.Uint16s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorQuant16Symm:
		values := b.Int16s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorInt32, hal.Int32:
		values := b.Int32s()
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = float64(v)
		}
		return out, nil
	case hal.TensorBool8, hal.Bool:
		values := b.Bool8s()
		out := make([]float64, len(values))
		for i, v := range values {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tolerance: cannot compare operand type %s", t)
	}
}

// CheckOutput compares one output buffer against the golden data of
// its operand.
func CheckOutput(output int, op *corpus.TestOperand, actual *corpus.Buffer, relaxed bool) (*Report, error) {
	expected := op.Data
	if expected == nil {
		return nil, fmt.Errorf("tolerance: output %d has no golden data", output)
	}
	if actual.Size() != expected.Size() {
		return nil, fmt.Errorf("tolerance: output %d size mismatch: expected %d bytes, got %d", output, expected.Size(), actual.Size())
	}

	want, err := decode(op.Type, expected)
	if err != nil {
		return nil, err
	}
	got, err := decode(op.Type, actual)
	if err != nil {
		return nil, err
	}

	criteria := ForType(op.Type, relaxed)
	report := &Report{Output: output, Elements: len(want)}

	worst := heap.NewWith(func(i, j Mismatch) int {
		return cmp.Compare(i.AbsErr(), j.AbsErr())
	})

	absErrs := make([]float64, len(want))
	for i := range want {
		m := Mismatch{Index: i, Expected: want[i], Actual: got[i]}
		if err := m.AbsErr(); !math.IsNaN(err) {
			absErrs[i] = err
		}

		if !criteria.allows(want[i], got[i]) {
			report.Mismatches++
			worst.Push(m)
			if worst.Size() > worstKept {
				worst.Pop()
			}
		}
	}

	if len(absErrs) > 0 {
		report.MaxAbsErr = floats.Max(absErrs)
		report.MeanAbsErr = stat.Mean(absErrs, nil)
	}

	report.Worst = make([]Mismatch, worst.Size())
	for i := worst.Size() - 1; i >= 0; i-- {
		report.Worst[i], _ = worst.Pop()
	}

	return report, nil
}

// CheckResults compares all outputs of a model against its golden
// buffers, joining one error per failing output.
func CheckResults(m *corpus.TestModel, outputs []*corpus.Buffer) ([]*Report, error) {
	if len(outputs) != len(m.OutputIndexes) {
		return nil, fmt.Errorf("tolerance: model %s has %d outputs, got %d buffers", m.Name, len(m.OutputIndexes), len(outputs))
	}

	var errs []error
	reports := make([]*Report, len(outputs))
	for i, buffer := range outputs {
		op := &m.Operands[m.OutputIndexes[i]]

		report, err := CheckOutput(i, op, buffer, m.IsRelaxed)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports[i] = report

		if report.Ok() {
			slog.Debug("output within tolerance", "model", m.Name, "output", i, "elements", report.Elements, "max_abs_err", report.MaxAbsErr)
			continue
		}

		sample := report.Worst[0]
		slog.Warn("output outside tolerance", "model", m.Name, "output", i,
			"mismatches", report.Mismatches, "elements", report.Elements,
			"worst_index", sample.Index, "expected", sample.Expected, "actual", sample.Actual)
		errs = append(errs, fmt.Errorf("output %d: %d of %d elements outside tolerance (max abs err %g)",
			i, report.Mismatches, report.Elements, report.MaxAbsErr))
	}

	return reports, errors.Join(errs...)
}
