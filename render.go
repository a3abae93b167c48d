package datatables

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"
)

// RowRenderer turns a fetched row into the cell array sent to the widget.
// Cells must follow column index order.
type RowRenderer interface {
	RenderRow(row Row, cols []*Column) ([]any, error)
}

// RowRendererFunc adapts a function to RowRenderer.
type RowRendererFunc func(row Row, cols []*Column) ([]any, error)

func (f RowRendererFunc) RenderRow(row Row, cols []*Column) ([]any, error) { return f(row, cols) }

// DefaultRenderer formats each cell by the column's display type.
type DefaultRenderer struct {
	DateLayout string
	Location   *time.Location
}

const defaultDateLayout = "2006-01-02 15:04:05"

func (r DefaultRenderer) RenderRow(row Row, cols []*Column) ([]any, error) {
	cells := make([]any, len(cols))
	for _, c := range cols {
		v, ok := row[c.Name]
		if !ok || v == nil {
			cells[c.Index] = c.DefaultContent
			continue
		}
		cells[c.Index] = r.RenderCell(c, v)
	}
	return cells, nil
}

// RenderCell formats one value.
func (r DefaultRenderer) RenderCell(c *Column, v any) any {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(r.RenderCell(c, item)))
		}
		return strings.Join(parts, ", ")
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch c.Type {
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			if r.Location != nil {
				t = t.In(r.Location)
			}
			layout := r.DateLayout
			if layout == "" {
				layout = defaultDateLayout
			}
			return t.Format(layout)
		}
		return fmt.Sprint(v)
	case TypeNumeric:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return n
		}
		return fmt.Sprint(v)
	case TypeNumericFormat, TypeHTMLNumFormat:
		if f, ok := toFloat(v); ok {
			return formatNumber(f)
		}
		return fmt.Sprint(v)
	case TypeHTML:
		return fmt.Sprint(v)
	}
	return html.EscapeString(fmt.Sprint(v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// formatNumber groups thousands with commas and keeps two decimals for
// fractional values.
func formatNumber(f float64) string {
	neg := f < 0
	f = math.Abs(f)
	var s string
	if f == math.Trunc(f) {
		s = strconv.FormatFloat(f, 'f', 0, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', 2, 64)
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
