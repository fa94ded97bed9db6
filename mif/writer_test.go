package mif

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spindrive/core/driver"
	"spindrive/core/model"
)

func testSystem() model.System {
	return model.System{
		Name: "stripe",
		Mesh: model.Mesh{
			P1:   [3]float64{0, 0, 0},
			P2:   [3]float64{100e-9, 50e-9, 5e-9},
			Cell: [3]float64{5e-9, 5e-9, 5e-9},
		},
		Ms: 8e5,
		M0: [3]float64{1, 0, 0},
		Energy: []model.Term{
			model.Exchange{A: 1.3e-11},
			model.Demag{},
			model.Zeeman{H: [3]float64{0, 0, 1e6}},
		},
	}
}

func TestScriptMinDriver(t *testing.T) {
	script, err := Script(testSystem(), driver.Min{}, Options{})
	if err != nil {
		t.Fatalf("Script: %v", err)
	}

	// Section order matters to the engine parser: options, atlas,
	// mesh, energies, evolver, driver, schedules.
	wantOrder := []string{
		"# MIF 2.2",
		"SetOptions",
		"basename stripe",
		"Specify Oxs_BoxAtlas:atlas",
		"Specify Oxs_RectangularMesh:mesh",
		"Specify Oxs_UniformExchange",
		"Specify Oxs_Demag",
		"Specify Oxs_FixedZeeman:zeeman",
		"Specify Oxs_CGEvolve:evolver",
		"Specify Oxs_MinDriver",
		"stopping_mxHxm 0.1",
		"Destination table mmArchive",
		"Schedule DataTable table Stage 1",
		"Schedule Oxs_MinDriver::Magnetization mags Stage 1",
	}
	pos := 0
	for _, want := range wantOrder {
		idx := strings.Index(script[pos:], want)
		if idx < 0 {
			t.Fatalf("script missing %q after position %d:\n%s", want, pos, script)
		}
		pos += idx
	}
}

func TestScriptTimeDriver(t *testing.T) {
	script, err := Script(testSystem(), driver.Time{T: 1e-9, N: 10, Alpha: 0.02}, Options{})
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	for _, want := range []string{
		"Specify Oxs_RungeKuttaEvolve:evolver",
		"alpha 0.02",
		"method rkf54",
		"Specify Oxs_TimeDriver",
		"stopping_time 1e-10",
		"stage_count 10",
		"Schedule Oxs_TimeDriver::Magnetization mags Stage 1",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}
}

func TestScriptOVFFormats(t *testing.T) {
	cases := []struct {
		format OVFFormat
		want   string
	}{
		{OVFBin8, "vector_field_output_format {binary 8}"},
		{OVFBin4, "vector_field_output_format {binary 4}"},
		{OVFText, "vector_field_output_format {text %#.17g}"},
		{"", "vector_field_output_format {binary 8}"},
	}
	for _, tc := range cases {
		script, err := Script(testSystem(), driver.Min{}, Options{OVFFormat: tc.format})
		if err != nil {
			t.Fatalf("Script(%q): %v", tc.format, err)
		}
		if !strings.Contains(script, tc.want) {
			t.Fatalf("format %q: script missing %q", tc.format, tc.want)
		}
	}
}

func TestScriptComputeLine(t *testing.T) {
	script, err := Script(testSystem(), driver.Min{},
		Options{Compute: "Schedule DataTable archive Step 1"})
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if !strings.Contains(script, "Schedule DataTable archive Step 1") {
		t.Fatal("compute schedule line not appended")
	}
}

func TestWriteCreatesSingleFile(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(testSystem(), driver.Min{}, dir, Options{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "stripe.mif" {
		t.Fatalf("path %s", path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("%d entries in workspace, want 1 (no temp leftovers)", len(entries))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# MIF 2.2") {
		t.Fatalf("file does not start with MIF header")
	}
}

func TestWriteInvalidSystem(t *testing.T) {
	dir := t.TempDir()
	system := testSystem()
	system.Ms = 0

	_, err := Write(system, driver.Min{}, dir, Options{})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error %v, want GenerationError", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %v", entries)
	}
}

func TestWriteInvalidDriver(t *testing.T) {
	_, err := Write(testSystem(), driver.Time{T: -1, N: 5}, t.TempDir(), Options{})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error %v, want GenerationError", err)
	}
}

type bogusDriver struct{ driver.Min }

func (bogusDriver) Kind() driver.Kind { return "hysteresis" }

func TestScriptUnknownDriverKind(t *testing.T) {
	_, err := Script(testSystem(), bogusDriver{}, Options{})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error %v, want GenerationError", err)
	}
	if !strings.Contains(genErr.Reason, "hysteresis") {
		t.Fatalf("reason %q does not name the kind", genErr.Reason)
	}
}

func TestScriptAllTerms(t *testing.T) {
	system := testSystem()
	system.Energy = []model.Term{
		model.Exchange{A: 1.3e-11},
		model.Demag{},
		model.Zeeman{H: [3]float64{0, 0, 1e6}},
		model.UniaxialAnisotropy{K1: 5e5, U: [3]float64{0, 0, 1}},
		model.CubicAnisotropy{K1: 1e4, U1: [3]float64{1, 0, 0}, U2: [3]float64{0, 1, 0}},
		model.DMI{D: 1.5e-3},
	}
	script, err := Script(system, driver.Min{}, Options{})
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	for _, want := range []string{
		"Oxs_UniaxialAnisotropy", "Oxs_CubicAnisotropy", "Oxs_DMI_Cnv",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q", want)
		}
	}
}
