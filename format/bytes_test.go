package format

import (
	"testing"
)

func TestHumanBytes(t *testing.T) {
	type testCase struct {
		input    int64
		expected string
	}

	tests := []testCase{
		{0, "0 B"},
		{1, "1 B"},
		{999, "999 B"},

		{1000, "1 KB"},
		{1024, "1.0 KB"},
		{1500, "1.5 KB"},
		{12000, "12 KB"},
		{999999, "999 KB"},

		{1000000, "1 MB"},
		{1550000, "1.6 MB"},
		{999999999, "999 MB"},

		{1000000000, "1 GB"},
		{2500000000, "2.5 GB"},

		{1000000000000, "1 TB"},
		{1500000000000, "1.5 TB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			result := HumanBytes(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestHumanBytes2(t *testing.T) {
	type testCase struct {
		input    uint64
		expected string
	}

	tests := []testCase{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},

		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048575, "1024.0 KiB"},

		{1048576, "1.0 MiB"},
		{1572864, "1.5 MiB"},

		{1073741824, "1.0 GiB"},
		{1610612736, "1.5 GiB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			result := HumanBytes2(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}
