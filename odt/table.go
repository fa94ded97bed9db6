// Package odt parses the engine's tabular ODT output into an ordered
// table of numeric records. Files are read, never modified.
package odt

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseError points at the exact offending location so a bad engine
// run can be diagnosed from the file itself.
type ParseError struct {
	Path string
	// Line is 1-based within the file; Row is the 0-based data row
	// index, or -1 when the failure is not tied to a data row.
	Line   int
	Row    int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("odt %s: line %d (row %d): %s", e.Path, e.Line, e.Row, e.Reason)
	}
	return fmt.Sprintf("odt %s: line %d: %s", e.Path, e.Line, e.Reason)
}

// Record is one data row, in file order.
type Record []float64

// Table is the decoded tabular output.
type Table struct {
	Columns []string
	Units   []string
	Records []Record
	// X is the index of the driving column the table is monotonic in.
	X int
}

// Get returns the value of the named column in row i.
func (t *Table) Get(i int, column string) (float64, bool) {
	for j, name := range t.Columns {
		if name == column || shortName(name) == column {
			return t.Records[i][j], true
		}
	}
	return 0, false
}

// Last returns the final record, the usual quantity of interest after
// a relaxation.
func (t *Table) Last() Record {
	if len(t.Records) == 0 {
		return nil
	}
	return t.Records[len(t.Records)-1]
}

// Parse reads an ODT file. xColumn names the driving column (matched
// against either the full "Oxs_...::Name" form or the bare trailing
// name); rows must be non-decreasing in that column. Trailing comment
// and blank lines are tolerated; a malformed cell or a row with the
// wrong column count is an error, never skipped.
func Parse(path string, xColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open odt: %w", err)
	}
	defer f.Close()

	table := &Table{X: -1}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	row := 0
	var rowLines []int
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			header := strings.TrimSpace(trimmed[1:])
			switch {
			case strings.HasPrefix(header, "Columns"):
				table.Columns = splitBraced(strings.TrimSpace(header[len("Columns"):]))
			case strings.HasPrefix(header, "Units"):
				table.Units = splitBraced(strings.TrimSpace(header[len("Units"):]))
			}
			continue
		}

		if len(table.Columns) == 0 {
			return nil, &ParseError{Path: path, Line: lineNo, Row: -1,
				Reason: "data row before Columns header"}
		}
		fields := strings.Fields(trimmed)
		if len(fields) != len(table.Columns) {
			return nil, &ParseError{Path: path, Line: lineNo, Row: row,
				Reason: fmt.Sprintf("%d values, want %d", len(fields), len(table.Columns))}
		}
		record := make(Record, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{Path: path, Line: lineNo, Row: row,
					Reason: fmt.Sprintf("column %q: bad value %q", table.Columns[i], field)}
			}
			record[i] = v
		}
		table.Records = append(table.Records, record)
		rowLines = append(rowLines, lineNo)
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read odt: %w", err)
	}
	if len(table.Columns) == 0 {
		return nil, &ParseError{Path: path, Line: lineNo, Row: -1,
			Reason: "missing Columns header"}
	}

	if xColumn != "" {
		x := -1
		for i, name := range table.Columns {
			if name == xColumn || shortName(name) == xColumn {
				x = i
				break
			}
		}
		if x < 0 {
			return nil, &ParseError{Path: path, Line: lineNo, Row: -1,
				Reason: fmt.Sprintf("driving column %q not in table", xColumn)}
		}
		table.X = x
		for i := 1; i < len(table.Records); i++ {
			if table.Records[i][x] < table.Records[i-1][x] {
				return nil, &ParseError{Path: path, Line: rowLines[i], Row: i,
					Reason: fmt.Sprintf("column %q not monotonic (%g after %g)",
						table.Columns[x], table.Records[i][x], table.Records[i-1][x])}
			}
		}
	}
	return table, nil
}

// splitBraced splits an ODT header payload where multi-word names are
// wrapped in braces: `{Oxs_TimeDriver::Simulation time} mx my` yields
// three entries.
func splitBraced(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] == '{' {
			depth := 1
			j := i + 1
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			out = append(out, strings.TrimSpace(s[i+1:j-1]))
			i = j
			continue
		}
		j := i
		for j < len(s) && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		out = append(out, s[i:j])
		i = j
	}
	return out
}

// shortName strips the engine's "Oxs_Owner::" prefix from a column
// name, lowercased for matching: "Oxs_TimeDriver::Simulation time"
// becomes "simulation time".
func shortName(full string) string {
	name := full
	if idx := strings.LastIndex(full, "::"); idx >= 0 {
		name = full[idx+2:]
	}
	return strings.ToLower(name)
}
