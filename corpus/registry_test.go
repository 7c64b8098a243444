package corpus

import (
	"slices"
	"strings"
	"testing"
)

func TestBuiltinModelsRegistered(t *testing.T) {
	names := Names()
	for _, want := range []string{
		"add_float32",
		"add_relaxed",
		"add_float16",
		"add_quant8",
		"mul_relu_float32",
		"reshape_float32",
		"concat_float32",
		"conv2d_per_channel_quant8",
		"add_mismatched_activation",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("builtin model %q not registered", want)
		}
	}

	if !slices.IsSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
}

func TestGetSuggestsClosest(t *testing.T) {
	_, err := Get("add_float3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "add_float32") {
		t.Errorf("expected a suggestion for add_float32, got %v", err)
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("zzzzzzzzzzzzzzz")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("nonsense name should not get a suggestion: %v", err)
	}
}

func TestAllSortedAndStable(t *testing.T) {
	models := All()
	if len(models) < 9 {
		t.Fatalf("expected at least 9 models, got %d", len(models))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].Name >= models[i].Name {
			t.Errorf("models not sorted at %d: %s >= %s", i, models[i-1].Name, models[i].Name)
		}
	}
}
