package report

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Markdown renders rows as a markdown pipe table.
//
// Only given columns are rendered, in the given order. If no columns are given, all columns are.
// Columns whose values are all numbers are right-aligned.
func Markdown(rows []Row, columns ...string) string {
	if len(columns) == 0 && 0 < len(rows) {
		columns = rows[0].columns
	}

	header := make([]string, len(columns))
	for j, c := range columns {
		header[j] = escapeCell(c)
	}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = make([]string, len(columns))
		for j, c := range columns {
			cells[i][j] = escapeCell(r.get(c))
		}
	}

	widths := make([]int, len(columns))
	numeric := make([]bool, len(columns))
	for j, c := range header {
		widths[j] = utf8.RuneCountInString(c)
		numeric[j] = 0 < len(rows)
		for i := range rows {
			v := cells[i][j]
			widths[j] = max(widths[j], utf8.RuneCountInString(v))
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric[j] = false
			}
		}
	}

	pad := func(s string, j int) string {
		n := widths[j] - utf8.RuneCountInString(s)
		if numeric[j] {
			return strings.Repeat(" ", n) + s
		}
		return s + strings.Repeat(" ", n)
	}

	sb := new(strings.Builder)
	line := func(values []string) {
		sb.WriteString("|")
		for j, v := range values {
			sb.WriteString(" ")
			sb.WriteString(pad(v, j))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	line(header)
	sb.WriteString("|")
	for j := range columns {
		if numeric[j] {
			sb.WriteString(strings.Repeat("-", widths[j]+1) + ":|")
		} else {
			sb.WriteString(":" + strings.Repeat("-", widths[j]+1) + "|")
		}
	}
	sb.WriteString("\n")
	for i := range rows {
		line(cells[i])
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// cells are on one line and "|" in them does not end the cell.
var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCell(s string) string {
	return cellEscaper.Replace(s)
}

// Markdown renders the whole table as a markdown pipe table.
func (t Table) Markdown(columns ...string) string {
	if len(columns) == 0 {
		columns = t.columns
	}
	return Markdown(t.Rows(), columns...)
}
