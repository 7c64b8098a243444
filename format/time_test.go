package format

import (
	"testing"
	"time"
)

func TestHumanDuration(t *testing.T) {
	type testCase struct {
		input    time.Duration
		expected string
	}

	tests := []testCase{
		{500 * time.Millisecond, "Less than a second"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{90 * time.Second, "About a minute"},
		{45 * time.Minute, "45 minutes"},
		{90 * time.Minute, "About an hour"},
		{5 * time.Hour, "5 hours"},
		{72 * time.Hour, "3 days"},
		{3 * 24 * 7 * time.Hour, "3 weeks"},
		{3 * 24 * 30 * time.Hour, "3 months"},
		{3 * 24 * 365 * time.Hour, "3 years"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			result := HumanDuration(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestExactDuration(t *testing.T) {
	type testCase struct {
		input    time.Duration
		expected string
	}

	tests := []testCase{
		{time.Millisecond, "1 millisecond"},
		{120 * time.Millisecond, "120 milliseconds"},
		{time.Second, "1 second"},
		{30 * time.Second, "30 seconds"},
		{90 * time.Second, "1 minute 30 seconds"},
		{2 * time.Minute, "2 minutes"},
		{time.Hour, "1 hour"},
		{time.Hour + 2*time.Minute + 5*time.Second, "1 hour 2 minutes 5 seconds"},
		{3*time.Hour + 30*time.Minute, "3 hours 30 minutes"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			result := ExactDuration(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}
