package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Truncate shortens s to at most n runes, marking the cut with "..."
func Truncate(s string, n int) string {
	if n <= 3 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// FormatMoney formats an amount with two decimals and a dollar sign
func FormatMoney(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-$" + amount.Neg().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}

// FormatPercent formats a fraction (0.5) as a percentage ("50.0%")
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// FormatProgress formats settled/total picks
func FormatProgress(settled, total int) string {
	return fmt.Sprintf("%d/%d", settled, total)
}

// FormatTable formats data as a table with headers
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	// Calculate column widths in runes; fmt pads by runes too.
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	var builder strings.Builder

	border := func(left, mid, right string) {
		builder.WriteString(left)
		for i, width := range widths {
			if i > 0 {
				builder.WriteString(mid)
			}
			builder.WriteString(strings.Repeat("─", width+2))
		}
		builder.WriteString(right + "\n")
	}
	line := func(cells []string) {
		builder.WriteString("│")
		for i := 0; i < len(headers); i++ {
			if i > 0 {
				builder.WriteString("│")
			}
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			builder.WriteString(fmt.Sprintf(" %-*s ", widths[i], cell))
		}
		builder.WriteString("│\n")
	}

	builder.WriteString("\n")
	border("┌", "┬", "┐")
	line(headers)
	border("├", "┼", "┤")
	for _, row := range rows {
		line(row)
	}
	border("└", "┴", "┘")

	return builder.String()
}

// FormatDate formats a timestamp for table display in local time
func FormatDate(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// FormatDuration formats a duration for table display
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
