package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{
			name: "short string untouched",
			in:   "abc",
			n:    10,
			want: "abc",
		},
		{
			name: "exact length untouched",
			in:   "abcdefghij",
			n:    10,
			want: "abcdefghij",
		},
		{
			name: "uuid shortened",
			in:   "550e8400-e29b-41d4-a716-446655440000",
			n:    11,
			want: "550e8400...",
		},
		{
			name: "multibyte runes counted once",
			in:   "Jokić under 11.5 reb",
			n:    8,
			want: "Jokić...",
		},
		{
			name: "tiny limit ignored",
			in:   "abcdef",
			n:    3,
			want: "abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"12.5", "$12.50"},
		{"250", "$250.00"},
		{"0.005", "$0.01"},
		{"-50", "-$50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FormatMoney(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0%"},
		{0.5, "50.0%"},
		{2.0 / 3.0, "66.7%"},
		{-0.25, "-25.0%"},
	}

	for _, tt := range tests {
		if got := FormatPercent(tt.in); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "2m"},
		{45 * time.Minute, "45m"},
		{90 * time.Minute, "1.5h"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTable(t *testing.T) {
	if FormatTable(nil, nil) != "" {
		t.Error("no headers must render nothing")
	}

	out := FormatTable(
		[]string{"NAME", "STATUS"},
		[][]string{
			{"Sunday slate", "active"},
			{"Jokić", "completed", "ignored extra cell"},
			{"short"},
		},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want 7:\n%s", len(lines), out)
	}

	width := len([]rune(lines[0]))
	for i, line := range lines {
		if n := len([]rune(line)); n != width {
			t.Errorf("line %d is %d runes wide, want %d:\n%s", i, n, width, out)
		}
	}
	if !strings.Contains(out, "│ NAME         │ STATUS    │") {
		t.Errorf("header row misaligned:\n%s", out)
	}
	if strings.Contains(out, "ignored extra cell") {
		t.Error("cells beyond the headers must be dropped")
	}
}
