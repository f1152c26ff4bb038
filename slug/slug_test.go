package slug

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "basic ascii", input: "Hello World", expected: "hello-world"},
		{name: "with punctuation", input: "Hello, World!", expected: "hello-world"},
		{name: "with multiple spaces", input: "Hello   World   Test", expected: "hello-world-test"},
		{name: "with unicode characters", input: "Café München", expected: "cafe-munchen"},
		{name: "with underscores and dots", input: "q3_report.final", expected: "q3-report-final"},
		{name: "with leading/trailing spaces", input: "  Hello World  ", expected: "hello-world"},
		{name: "only symbols", input: "@#$%", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.expected {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGenerateLength(t *testing.T) {
	got := Generate(strings.Repeat("word ", 40))
	if len(got) > MaxLength {
		t.Errorf("slug length %d exceeds %d", len(got), MaxLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("slug %q ends with a hyphen", got)
	}
}

func TestFromFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Marketing URLs.csv", expected: "marketing-urls"},
		{input: "../../etc/passwd.csv", expected: "passwd"},
		{input: `C:\Users\me\links.CSV`, expected: "links"},
		{input: "???.csv", expected: "file"},
		{input: "", expected: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FromFilename(tt.input); got != tt.expected {
				t.Errorf("FromFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
