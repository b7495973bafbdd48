package cli

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const maxColumnWidth = 40

// renderTable draws rows under a header, one line per row.
func renderTable(columns []string, rows [][]string) string {
	widths := columnWidths(columns, rows)

	var b strings.Builder
	b.WriteString(renderRow(columns, widths, true))
	b.WriteString("\n")
	b.WriteString(renderSeparator(widths))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row, widths, false))
	}
	return b.String()
}

func columnWidths(columns []string, rows [][]string) []int {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = lipgloss.Width(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] = min(max(widths[i], 1), maxColumnWidth)
	}
	return widths
}

func renderRow(cells []string, widths []int, header bool) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}

		display := truncate(cell, width)
		if pad := width - lipgloss.Width(display); pad > 0 {
			display += strings.Repeat(" ", pad)
		}

		if header {
			parts[i] = StyleHeader.Render(display)
		} else {
			parts[i] = display
		}
	}
	return "  " + strings.Join(parts, " │ ")
}

func renderSeparator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w)
	}
	return "  " + StyleBorder.Render(strings.Join(parts, "─┼─"))
}

// truncate shortens s to width cells, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	for lipgloss.Width(string(runes)) >= width && len(runes) > 0 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// formatCell renders a decoded value for text output.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(x).String()
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return formatCell(val)
	case map[string]any, []any:
		data, err := marshalJSON(x)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}
