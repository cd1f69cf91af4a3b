package main

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// table renders a column-aligned report, padding each cell to the widest
// cell in its column using display width (runewidth.StringWidth) rather
// than byte or rune count, so the columns still line up if a field ever
// carries a wide or combining character.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}

	for _, row := range t.rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow(&b, t.header, widths)

	for _, row := range t.rows {
		writeRow(&b, row, widths)
	}

	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		b.WriteString(cell)

		pad := widths[i] - runewidth.StringWidth(cell)
		if i < len(cells)-1 {
			pad += 2
		}

		b.WriteString(strings.Repeat(" ", pad))
	}

	b.WriteString("\n")
}
