// Package table reconstructs the two-dimensional cell matrix of a table tag
// from the flat, unordered region list stored on an asset.
package table

import (
	"fmt"
	"strconv"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// Cell holds the regions assigned to one table cell, in encounter order.
// Multiple regions may land in one cell (multi-line text). A nil Cell is an
// empty cell.
type Cell []labeling.Region

// Body is the row-major cell matrix for one table tag. Dimensions are always
// rows >= 1, columns == len(tag.ColumnKeys).
type Body [][]Cell

// Rows returns the row count.
func (b Body) Rows() int { return len(b) }

// Columns returns the column count, 0 for an empty body.
func (b Body) Columns() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Mapper builds table bodies. It remembers the last built tag so that, while
// the caller keeps labeling the same row-dynamic tag, the row count can only
// grow, never shrink. Switching tags resets that floor; switching back does
// not restore the old count.
type Mapper struct {
	lastTag  string
	lastRows int
}

// Build assembles the cell matrix for tag from regions. Only regions whose
// primary tag matches tag.Name participate. Regions with unresolvable row or
// column keys are skipped; this is a tolerated data-quality condition, not an
// error. Fixed-format tags never exceed their declared row count — an
// out-of-range row on a fixed tag is ignored the same way.
func (m *Mapper) Build(tag *labeling.Tag, regions []labeling.Region) Body {
	columns := len(tag.ColumnKeys)

	rows := len(tag.RowKeys)
	if tag.Format == labeling.FormatRowDynamic {
		if rows < 1 {
			rows = 1
		}
		if m.lastTag == tag.Name && m.lastRows > rows {
			rows = m.lastRows
		}
	}
	if rows < 1 {
		rows = 1
	}

	body := newBody(rows, columns)

	for _, region := range regions {
		if region.PrimaryTag() != tag.Name {
			continue
		}

		colIdx := fieldIndex(tag.ColumnKeys, region.ColumnKey)
		if colIdx < 0 {
			continue
		}

		var rowIdx int
		if tag.Format == labeling.FormatRowDynamic {
			idx, err := parseRowIndex(region.RowKey)
			if err != nil {
				continue
			}
			rowIdx = idx
			for rowIdx >= len(body) {
				body = append(body, make([]Cell, columns))
			}
		} else {
			rowIdx = fieldIndex(tag.RowKeys, region.RowKey)
			if rowIdx < 0 || rowIdx >= len(body) {
				continue
			}
		}

		body[rowIdx][colIdx] = append(body[rowIdx][colIdx], region)
	}

	if tag.Format == labeling.FormatRowDynamic {
		m.lastTag = tag.Name
		m.lastRows = len(body)
	} else {
		m.lastTag = ""
		m.lastRows = 0
	}

	return body
}

// AppendRow returns a new body with one empty row appended, for user-initiated
// row insertion on row-dynamic tags. The caller's body is not mutated: the
// returned value is a fresh matrix so callers can detect the change by value
// identity.
func AppendRow(body Body, tag *labeling.Tag) Body {
	grown := make(Body, 0, len(body)+1)
	grown = append(grown, body...)
	grown = append(grown, make([]Cell, len(tag.ColumnKeys)))
	return grown
}

func newBody(rows, columns int) Body {
	body := make(Body, rows)
	for i := range body {
		body[i] = make([]Cell, columns)
	}
	return body
}

func fieldIndex(fields []labeling.TableField, key string) int {
	for i, f := range fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// parseRowIndex converts a row-dynamic row key to a zero-based row index. The
// external key carries a 1-based numeric suffix (for example "#3" or "row3").
// Malformed keys fail only the single region carrying them.
func parseRowIndex(key string) (int, error) {
	start := len(key)
	for start > 0 && key[start-1] >= '0' && key[start-1] <= '9' {
		start--
	}
	if start == len(key) {
		return 0, fmt.Errorf("row key %q has no numeric suffix", key)
	}
	n, err := strconv.Atoi(key[start:])
	if err != nil {
		return 0, fmt.Errorf("row key %q: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("row key %q: row numbers are 1-based", key)
	}
	return n - 1, nil
}
