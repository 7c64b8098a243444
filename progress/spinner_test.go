package progress

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSpinnerMessage(t *testing.T) {
	spinner := NewSpinner("preparing")
	defer spinner.Stop()

	if got := spinner.String(); !strings.Contains(got, "preparing") {
		t.Errorf("String() = %q, want the message", got)
	}

	spinner.SetMessage("executing")
	got := spinner.String()
	if !strings.Contains(got, "executing") || strings.Contains(got, "preparing") {
		t.Errorf("String() after SetMessage = %q", got)
	}
}

func TestSpinnerGlyph(t *testing.T) {
	spinner := NewSpinner("")
	hasGlyph := func(s string) bool {
		for _, part := range spinner.parts {
			if strings.Contains(s, part) {
				return true
			}
		}
		return false
	}

	if got := spinner.String(); !hasGlyph(got) {
		t.Errorf("running spinner renders no glyph, got %q", got)
	}

	spinner.Stop()
	if got := spinner.String(); hasGlyph(got) {
		t.Errorf("stopped spinner still renders a glyph, got %q", got)
	}
}

func TestSpinnerStopIdempotent(t *testing.T) {
	spinner := NewSpinner("done")
	spinner.Stop()
	first := spinner.stopped

	time.Sleep(10 * time.Millisecond)
	spinner.Stop()

	if !first.Equal(spinner.stopped) {
		t.Error("second Stop moved the stop time")
	}
}

func TestSpinnerMessageWidth(t *testing.T) {
	spinner := NewSpinner("conv2d_per_channel_quant8 quantization_coupling")
	defer spinner.Stop()

	spinner.messageWidth = 12
	got := spinner.String()
	if strings.Contains(got, "coupling") {
		t.Errorf("String() did not truncate to the message width, got %q", got)
	}
}

// SetMessage races with the render loop by design: the CLI retitles
// the spinner per scenario while the display repaints it.
func TestSpinnerConcurrentSetMessage(t *testing.T) {
	spinner := NewSpinner("start")
	defer spinner.Stop()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				spinner.SetMessage("add_float32 general")
				_ = spinner.String()
			}
		}()
	}
	wg.Wait()

	if got := spinner.String(); !strings.Contains(got, "add_float32") {
		t.Errorf("String() = %q after concurrent updates", got)
	}
}
