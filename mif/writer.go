// Package mif translates a system and a driver into the engine's MIF
// input script. The grammar is owned by the engine; section order and
// numeric formatting below match what its parser accepts.
package mif

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spindrive/core/driver"
	"spindrive/core/model"
)

// GenerationError reports a model/driver combination the writer cannot
// express in MIF. The caller must fix the inputs; retrying is useless.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mif generation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mif generation: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// OVFFormat selects the payload encoding of field snapshots written by
// the engine.
type OVFFormat string

const (
	OVFBin8 OVFFormat = "bin8"
	OVFBin4 OVFFormat = "bin4"
	OVFText OVFFormat = "txt"
)

func (f OVFFormat) specifier() (string, error) {
	switch f {
	case OVFBin8, "":
		return "binary 8", nil
	case OVFBin4:
		return "binary 4", nil
	case OVFText:
		return "text %#.17g", nil
	}
	return "", fmt.Errorf("unknown ovf format %q", f)
}

// Options tune input generation without changing drive semantics.
type Options struct {
	OVFFormat OVFFormat
	// Compute appends one extra Schedule line verbatim, used to save
	// additional quantities during the run.
	Compute string
}

// Write serialises system+drv into <dir>/<system.Name>.mif and returns
// the path. The write is atomic: the script is assembled in a temp
// file and renamed into place, so a failure never leaves a partial
// input behind.
func Write(system model.System, drv driver.Driver, dir string, opts Options) (string, error) {
	if err := system.Validate(); err != nil {
		return "", &GenerationError{Reason: "invalid system", Err: err}
	}
	if err := drv.Validate(); err != nil {
		return "", &GenerationError{Reason: "invalid driver", Err: err}
	}

	script, err := Script(system, drv, opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, system.Name+".mif")
	tmp, err := os.CreateTemp(dir, "."+system.Name+".mif.*")
	if err != nil {
		return "", fmt.Errorf("create mif: %w", err)
	}
	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write mif: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write mif: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write mif: %w", err)
	}
	return path, nil
}

// Script assembles the full MIF text without touching the filesystem.
func Script(system model.System, drv driver.Driver, opts Options) (string, error) {
	var b strings.Builder
	b.WriteString("# MIF 2.2\n\n")

	ovf, err := opts.OVFFormat.specifier()
	if err != nil {
		return "", &GenerationError{Reason: "invalid options", Err: err}
	}
	fmt.Fprintf(&b, "SetOptions {\n")
	fmt.Fprintf(&b, "  basename %s\n", system.Name)
	fmt.Fprintf(&b, "  scalar_output_format %%.12g\n")
	fmt.Fprintf(&b, "  scalar_field_output_format {text %%#.15g}\n")
	fmt.Fprintf(&b, "  vector_field_output_format {%s}\n", ovf)
	b.WriteString("}\n\n")

	writeMesh(&b, system.Mesh)

	for _, term := range system.Energy {
		if err := writeTerm(&b, term); err != nil {
			return "", err
		}
	}

	switch d := drv.(type) {
	case driver.Min:
		writeMinDriver(&b, system, d)
	case driver.Time:
		writeTimeDriver(&b, system, d)
	default:
		return "", &GenerationError{
			Reason: fmt.Sprintf("unsupported driver kind %q", drv.Kind()),
		}
	}

	driverName := driverSpecifyName(drv)
	b.WriteString("Destination table mmArchive\n")
	b.WriteString("Destination mags mmArchive\n\n")
	b.WriteString("Schedule DataTable table Stage 1\n")
	fmt.Fprintf(&b, "Schedule %s::Magnetization mags Stage 1\n", driverName)
	if opts.Compute != "" {
		b.WriteString(opts.Compute)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeMesh(b *strings.Builder, mesh model.Mesh) {
	fmt.Fprintf(b, "Specify Oxs_BoxAtlas:atlas {\n")
	fmt.Fprintf(b, "  xrange {%.12g %.12g}\n", mesh.P1[0], mesh.P2[0])
	fmt.Fprintf(b, "  yrange {%.12g %.12g}\n", mesh.P1[1], mesh.P2[1])
	fmt.Fprintf(b, "  zrange {%.12g %.12g}\n", mesh.P1[2], mesh.P2[2])
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "Specify Oxs_RectangularMesh:mesh {\n")
	fmt.Fprintf(b, "  cellsize {%.12g %.12g %.12g}\n",
		mesh.Cell[0], mesh.Cell[1], mesh.Cell[2])
	b.WriteString("  atlas :atlas\n")
	b.WriteString("}\n\n")
}

func writeTerm(b *strings.Builder, term model.Term) error {
	switch t := term.(type) {
	case model.Exchange:
		fmt.Fprintf(b, "Specify Oxs_UniformExchange {\n  A %.12g\n}\n\n", t.A)
	case model.Demag:
		b.WriteString("Specify Oxs_Demag {}\n\n")
	case model.Zeeman:
		fmt.Fprintf(b, "Specify Oxs_FixedZeeman:zeeman {\n")
		fmt.Fprintf(b, "  field {%.12g %.12g %.12g}\n", t.H[0], t.H[1], t.H[2])
		b.WriteString("  multiplier 1\n}\n\n")
	case model.UniaxialAnisotropy:
		fmt.Fprintf(b, "Specify Oxs_UniaxialAnisotropy {\n")
		fmt.Fprintf(b, "  K1 %.12g\n", t.K1)
		fmt.Fprintf(b, "  axis {%.12g %.12g %.12g}\n", t.U[0], t.U[1], t.U[2])
		b.WriteString("}\n\n")
	case model.CubicAnisotropy:
		fmt.Fprintf(b, "Specify Oxs_CubicAnisotropy {\n")
		fmt.Fprintf(b, "  K1 %.12g\n", t.K1)
		fmt.Fprintf(b, "  axis1 {%.12g %.12g %.12g}\n", t.U1[0], t.U1[1], t.U1[2])
		fmt.Fprintf(b, "  axis2 {%.12g %.12g %.12g}\n", t.U2[0], t.U2[1], t.U2[2])
		b.WriteString("}\n\n")
	case model.DMI:
		fmt.Fprintf(b, "Specify Oxs_DMI_Cnv {\n")
		fmt.Fprintf(b, "  default_D %.12g\n", t.D)
		b.WriteString("  atlas :atlas\n  D {\n    atlas atlas ")
		fmt.Fprintf(b, "%.12g\n  }\n}\n\n", t.D)
	default:
		return &GenerationError{
			Reason: fmt.Sprintf("unsupported energy term %q", term.Kind()),
		}
	}
	return nil
}

func writeMinDriver(b *strings.Builder, system model.System, d driver.Min) {
	b.WriteString("Specify Oxs_CGEvolve:evolver {}\n\n")
	b.WriteString("Specify Oxs_MinDriver {\n")
	b.WriteString("  evolver :evolver\n")
	fmt.Fprintf(b, "  stopping_mxHxm %.12g\n", d.Stopping())
	if d.MaxIterations > 0 {
		fmt.Fprintf(b, "  total_iteration_limit %d\n", d.MaxIterations)
	}
	b.WriteString("  mesh :mesh\n")
	writeMagnetisation(b, system)
	b.WriteString("}\n\n")
}

func writeTimeDriver(b *strings.Builder, system model.System, d driver.Time) {
	b.WriteString("Specify Oxs_RungeKuttaEvolve:evolver {\n")
	if d.Alpha > 0 {
		fmt.Fprintf(b, "  alpha %.12g\n", d.Alpha)
	}
	b.WriteString("  method rkf54\n}\n\n")
	b.WriteString("Specify Oxs_TimeDriver {\n")
	b.WriteString("  evolver :evolver\n")
	fmt.Fprintf(b, "  stopping_time %.12g\n", d.StageSeconds())
	fmt.Fprintf(b, "  stage_count %d\n", d.N)
	b.WriteString("  mesh :mesh\n")
	writeMagnetisation(b, system)
	b.WriteString("}\n\n")
}

func writeMagnetisation(b *strings.Builder, system model.System) {
	fmt.Fprintf(b, "  Ms %.12g\n", system.Ms)
	b.WriteString("  m0 { Oxs_UniformVectorField {\n")
	fmt.Fprintf(b, "    vector {%.12g %.12g %.12g}\n",
		system.M0[0], system.M0[1], system.M0[2])
	b.WriteString("  } }\n")
}

func driverSpecifyName(drv driver.Driver) string {
	if drv.Kind() == driver.KindTime {
		return "Oxs_TimeDriver"
	}
	return "Oxs_MinDriver"
}

// Filename returns the MIF filename for a system without writing it.
func Filename(systemName string) string {
	return systemName + ".mif"
}
