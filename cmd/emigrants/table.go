package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	// noteWidth bounds the ingest Note column. Whole error chains are in the
	// log; the table keeps their start.
	noteWidth = 60
	// valueWidth wraps long story values such as mentions and keywords.
	valueWidth = 72
)

// column describes one output column. A positive width caps it: the text is
// cut with an ellipsis, or soft-wrapped when wrap is set.
type column struct {
	title string
	right bool
	width int
	wrap  bool
}

func left(title string) column  { return column{title: title} }
func right(title string) column { return column{title: title, right: true} }

func (c column) config(number int) table.ColumnConfig {
	cfg := table.ColumnConfig{
		Number:      number,
		Align:       text.AlignLeft,
		AlignHeader: text.AlignLeft,
		WidthMax:    c.width,
	}
	if c.right {
		cfg.Align = text.AlignRight
	}
	if c.width > 0 {
		cfg.WidthMaxEnforcer = ellipsize
		if c.wrap {
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
	}
	return cfg
}

// ellipsize cuts s to n display columns, the last one being "…".
func ellipsize(s string, n int) string {
	if n <= 0 || text.StringWidthWithoutEscSequences(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return text.Trim(s, n-1) + "…"
}

// renderTable draws rows under columns. Short rows are padded with empty
// cells and extra cells are dropped.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		configs[i] = c.config(i + 1)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
