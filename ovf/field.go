// Package ovf decodes the engine's OVF 2.0 vector-field dumps: a
// commented header block describing the mesh, followed by a text or
// little-endian binary payload guarded by a control value.
package ovf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Control values written as the first payload element of binary
// segments; a mismatch means the byte order or precision is wrong.
const (
	controlBin8 = 123456789012345.0
	controlBin4 = 1234567.0
)

// ParseError reports a malformed field dump.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ovf %s: %s", e.Path, e.Reason)
}

// Field is one decoded snapshot. Data is laid out x-fastest, then y,
// then z, with ValueDim components per node, exactly as emitted.
type Field struct {
	Path     string
	Nodes    [3]int
	StepSize [3]float64
	Min      [3]float64
	Max      [3]float64
	ValueDim int
	Units    []string
	// Time is the simulation time from the Desc header, when present.
	Time float64
	Data []float64
}

// At returns the components of the node at (ix, iy, iz).
func (f *Field) At(ix, iy, iz int) []float64 {
	idx := ((iz*f.Nodes[1]+iy)*f.Nodes[0] + ix) * f.ValueDim
	return f.Data[idx : idx+f.ValueDim]
}

// Read decodes a single-segment OVF 2.0 file.
func Read(path string) (*Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ovf: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	field := &Field{Path: path, ValueDim: -1, Nodes: [3]int{-1, -1, -1}}

	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, &ParseError{Path: path, Reason: "truncated header"}
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed == "" {
				continue
			}
			return nil, &ParseError{Path: path,
				Reason: fmt.Sprintf("unexpected content in header: %q", trimmed)}
		}
		header := strings.TrimSpace(trimmed[1:])
		key, value, _ := strings.Cut(header, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "xnodes", "ynodes", "znodes":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, &ParseError{Path: path,
					Reason: fmt.Sprintf("bad %s %q", key, value)}
			}
			field.Nodes[key[0]-'x'] = n
		case "xstepsize", "ystepsize", "zstepsize":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, &ParseError{Path: path,
					Reason: fmt.Sprintf("bad %s %q", key, value)}
			}
			field.StepSize[key[0]-'x'] = v
		case "xmin", "ymin", "zmin":
			field.Min[key[0]-'x'], _ = strconv.ParseFloat(value, 64)
		case "xmax", "ymax", "zmax":
			field.Max[key[0]-'x'], _ = strconv.ParseFloat(value, 64)
		case "valuedim":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, &ParseError{Path: path,
					Reason: fmt.Sprintf("bad valuedim %q", value)}
			}
			field.ValueDim = n
		case "valueunits":
			field.Units = strings.Fields(value)
		case "desc":
			if t, ok := descTime(value); ok {
				field.Time = t
			}
		case "begin":
			section := strings.ToLower(value)
			if strings.HasPrefix(section, "data") {
				if err := checkHeader(field, path); err != nil {
					return nil, err
				}
				if err := readPayload(r, field, section); err != nil {
					return nil, err
				}
				return field, nil
			}
		}
	}
}

func checkHeader(field *Field, path string) error {
	for i, axis := range []string{"xnodes", "ynodes", "znodes"} {
		if field.Nodes[i] <= 0 {
			return &ParseError{Path: path, Reason: "missing " + axis}
		}
	}
	if field.ValueDim <= 0 {
		return &ParseError{Path: path, Reason: "missing valuedim"}
	}
	return nil
}

func readPayload(r *bufio.Reader, field *Field, section string) error {
	count := field.Nodes[0] * field.Nodes[1] * field.Nodes[2] * field.ValueDim
	switch {
	case strings.HasPrefix(section, "data text"):
		return readText(r, field, count)
	case strings.HasPrefix(section, "data binary 8"):
		return readBinary(r, field, count, 8)
	case strings.HasPrefix(section, "data binary 4"):
		return readBinary(r, field, count, 4)
	}
	return &ParseError{Path: field.Path,
		Reason: fmt.Sprintf("unsupported data section %q", section)}
}

func readText(r *bufio.Reader, field *Field, count int) error {
	field.Data = make([]float64, 0, count)
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if strings.Contains(strings.ToLower(trimmed), "end") {
				break
			}
			if err != nil {
				break
			}
			continue
		}
		for _, tok := range strings.Fields(trimmed) {
			v, perr := strconv.ParseFloat(tok, 64)
			if perr != nil {
				return &ParseError{Path: field.Path,
					Reason: fmt.Sprintf("bad value %q in text payload", tok)}
			}
			field.Data = append(field.Data, v)
		}
		if err != nil {
			break
		}
	}
	if len(field.Data) != count {
		return &ParseError{Path: field.Path,
			Reason: fmt.Sprintf("payload has %d values, header promises %d",
				len(field.Data), count)}
	}
	return nil
}

func readBinary(r *bufio.Reader, field *Field, count, width int) error {
	// OVF 2.0 binary payloads are little-endian and open with a fixed
	// control value.
	buf := make([]byte, width)
	read := func() (float64, error) {
		if _, err := fullRead(r, buf); err != nil {
			return 0, err
		}
		if width == 8 {
			return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	}

	control, err := read()
	if err != nil {
		return &ParseError{Path: field.Path, Reason: "truncated binary payload"}
	}
	want := controlBin8
	if width == 4 {
		want = controlBin4
	}
	if control != want {
		return &ParseError{Path: field.Path,
			Reason: fmt.Sprintf("bad control value %g, want %g", control, want)}
	}

	field.Data = make([]float64, count)
	for i := range field.Data {
		v, err := read()
		if err != nil {
			return &ParseError{Path: field.Path,
				Reason: fmt.Sprintf("payload truncated at value %d of %d", i, count)}
		}
		field.Data[i] = v
	}
	return nil
}

func fullRead(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// descTime extracts the simulation time from a Desc header of the form
// "Total simulation time: 1.5e-10 s".
func descTime(value string) (float64, bool) {
	lower := strings.ToLower(value)
	const marker = "simulation time:"
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return 0, false
	}
	rest := strings.Fields(value[idx+len(marker):])
	if len(rest) == 0 {
		return 0, false
	}
	t, err := strconv.ParseFloat(rest[0], 64)
	if err != nil {
		return 0, false
	}
	return t, true
}

// Glob reads every file matching pattern in lexical order, which for
// the engine's zero-padded snapshot names is emission order.
func Glob(pattern string) ([]*Field, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	fields := make([]*Field, 0, len(matches))
	for _, p := range matches {
		f, err := Read(p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
