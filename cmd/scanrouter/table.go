package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableView accumulates rows for the rounded tables the CLI prints.
// Columns named in numeric (zero-based) are right-aligned; everything
// else, headers included, stays left-aligned.
type tableView struct {
	writer  table.Writer
	columns int
}

func newTableView(columns []string, numeric ...int) *tableView {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(columns))
	for _, column := range columns {
		header = append(header, column)
	}
	tw.AppendHeader(header)

	if len(numeric) > 0 {
		configs := make([]table.ColumnConfig, 0, len(numeric))
		for _, index := range numeric {
			configs = append(configs, table.ColumnConfig{
				Number:      index + 1,
				Align:       text.AlignRight,
				AlignHeader: text.AlignLeft,
			})
		}
		tw.SetColumnConfigs(configs)
	}

	return &tableView{writer: tw, columns: len(columns)}
}

// addRow pads or truncates cells to the header width so ragged input
// never shifts columns.
func (v *tableView) addRow(cells ...string) {
	row := make(table.Row, v.columns)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	v.writer.AppendRow(row)
}

func (v *tableView) render() string {
	return v.writer.Render()
}
