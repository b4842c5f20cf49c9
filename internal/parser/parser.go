// Package parser decodes spreadsheet CSV exports into header-keyed rows.
package parser

import (
	"strconv"
	"strings"
)

// Row is one decoded record. Index is the 1-based line number of the record
// in the source text (the header is line 1), so it stays stable for
// out-of-band updates such as marking a vocabulary row as learned.
type Row struct {
	Index   int               `json:"index"`
	Columns []string          `json:"columns"`
	Fields  map[string]string `json:"fields"`
}

// Get returns the value stored under column.
func (r Row) Get(column string) (string, bool) {
	v, ok := r.Fields[column]
	return v, ok
}

// ExcessColumn is the synthesized name of the zero-based column i when the
// header line has no usable name for it.
func ExcessColumn(i int) string {
	return "col" + strconv.Itoa(i)
}

// Decode splits text into lines and maps every non-blank data line onto the
// header line. It never fails: malformed input degrades to empty or
// misaligned values. Fewer than two lines yield no rows.
func Decode(text string) []Row {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		lines = lines[:n-1]
	}
	if len(lines) < 2 {
		return nil
	}

	headers := headerNames(splitLine(strings.TrimRight(lines[0], "\r")))

	rows := make([]Row, 0, len(lines)-1)
	for i := 1; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, buildRow(headers, splitLine(line), i+1))
	}
	return rows
}

// FromRecords applies the same header and row rules as Decode to records
// that were already split into cells, e.g. the rows of an XLSX sheet.
// records[0] is the header; record i sits on line i+1.
func FromRecords(records [][]string) []Row {
	if len(records) < 2 {
		return nil
	}

	header := make([]string, len(records[0]))
	for i, cell := range records[0] {
		header[i] = normalize(cell, false)
	}
	headers := headerNames(header)

	rows := make([]Row, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		fields := make([]string, len(records[i]))
		blank := true
		for j, cell := range records[i] {
			fields[j] = normalize(cell, false)
			if fields[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, buildRow(headers, fields, i+1))
	}
	return rows
}

// splitLine scans one line. A double quote toggles the quoted state, a doubled
// quote inside a quoted field is a literal quote, and a comma separates fields
// only outside quotes. The end of the line always terminates the last field.
// An unterminated quote is confined to its own line.
func splitLine(line string) []string {
	var (
		fields  []string
		buf     strings.Builder
		quoted  bool
		escaped bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if quoted && i+1 < len(line) && line[i+1] == '"' {
				buf.WriteByte('"')
				escaped = true
				i++
				continue
			}
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, normalize(buf.String(), escaped))
			buf.Reset()
			escaped = false
		default:
			buf.WriteByte(c)
		}
	}
	return append(fields, normalize(buf.String(), escaped))
}

// normalize trims a field and strips one pair of wrapping quotes. Quotes that
// came from "" escapes are part of the value and are kept.
func normalize(field string, escaped bool) string {
	field = strings.TrimSpace(field)
	if !escaped && len(field) >= 2 && field[0] == '"' && field[len(field)-1] == '"' {
		field = strings.TrimSpace(field[1 : len(field)-1])
	}
	return field
}

// headerNames replaces empty header cells with their synthesized name.
func headerNames(fields []string) []string {
	out := make([]string, len(fields))
	for i, name := range fields {
		if name == "" {
			name = ExcessColumn(i)
		}
		out[i] = name
	}
	return out
}

func buildRow(headers, fields []string, index int) Row {
	values := make(map[string]string, len(headers))
	columns := headers
	for i, h := range headers {
		v := ""
		if i < len(fields) {
			v = fields[i]
		}
		values[h] = v
	}
	for i := len(headers); i < len(fields); i++ {
		if fields[i] != "" {
			if len(columns) == len(headers) {
				columns = append([]string(nil), headers...)
			}
			name := ExcessColumn(i)
			values[name] = fields[i]
			columns = append(columns, name)
		}
	}
	return Row{Index: index, Columns: columns, Fields: values}
}
