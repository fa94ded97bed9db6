// Package specfile loads a declarative YAML description of a drive:
// the system, its energy terms and the driver parameters. It exists so
// the CLI can run simulations without Go code.
package specfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"spindrive/core/driver"
	"spindrive/core/model"
)

// Spec is the top-level YAML document.
type Spec struct {
	System SystemSpec `yaml:"system"`
	Driver DriverSpec `yaml:"driver"`
}

type SystemSpec struct {
	Name   string     `yaml:"name"`
	Mesh   MeshSpec   `yaml:"mesh"`
	Ms     float64    `yaml:"ms"`
	M0     [3]float64 `yaml:"m0"`
	Energy []TermSpec `yaml:"energy"`
}

type MeshSpec struct {
	P1   [3]float64 `yaml:"p1"`
	P2   [3]float64 `yaml:"p2"`
	Cell [3]float64 `yaml:"cell"`
}

// TermSpec is one energy term; Kind selects which of the remaining
// fields apply.
type TermSpec struct {
	Kind string     `yaml:"kind"`
	A    float64    `yaml:"a"`
	H    [3]float64 `yaml:"h"`
	K1   float64    `yaml:"k1"`
	U    [3]float64 `yaml:"u"`
	U1   [3]float64 `yaml:"u1"`
	U2   [3]float64 `yaml:"u2"`
	D    float64    `yaml:"d"`
}

type DriverSpec struct {
	Kind string `yaml:"kind"`
	// Min driver.
	StoppingMxHxM float64 `yaml:"stopping_mxhxm"`
	MaxIterations int     `yaml:"max_iterations"`
	// Time driver; T in simulation seconds.
	T     float64 `yaml:"t"`
	N     int     `yaml:"n"`
	Alpha float64 `yaml:"alpha"`
}

// Load reads and validates a run spec file.
func Load(path string) (model.System, driver.Driver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.System{}, nil, fmt.Errorf("read spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes a run spec document.
func Parse(data []byte) (model.System, driver.Driver, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return model.System{}, nil, fmt.Errorf("parse spec: %w", err)
	}

	system := model.System{
		Name: spec.System.Name,
		Mesh: model.Mesh{
			P1:   spec.System.Mesh.P1,
			P2:   spec.System.Mesh.P2,
			Cell: spec.System.Mesh.Cell,
		},
		Ms: spec.System.Ms,
		M0: spec.System.M0,
	}
	for _, term := range spec.System.Energy {
		t, err := term.toModel()
		if err != nil {
			return model.System{}, nil, err
		}
		system.Energy = append(system.Energy, t)
	}
	if err := system.Validate(); err != nil {
		return model.System{}, nil, err
	}

	drv, err := spec.Driver.toDriver()
	if err != nil {
		return model.System{}, nil, err
	}
	if err := drv.Validate(); err != nil {
		return model.System{}, nil, err
	}
	return system, drv, nil
}

func (t TermSpec) toModel() (model.Term, error) {
	switch t.Kind {
	case "exchange":
		return model.Exchange{A: t.A}, nil
	case "demag":
		return model.Demag{}, nil
	case "zeeman":
		return model.Zeeman{H: t.H}, nil
	case "uniaxialanisotropy":
		return model.UniaxialAnisotropy{K1: t.K1, U: t.U}, nil
	case "cubicanisotropy":
		return model.CubicAnisotropy{K1: t.K1, U1: t.U1, U2: t.U2}, nil
	case "dmi":
		return model.DMI{D: t.D}, nil
	}
	return nil, fmt.Errorf("spec: unknown energy term kind %q", t.Kind)
}

func (d DriverSpec) toDriver() (driver.Driver, error) {
	switch driver.Kind(d.Kind) {
	case driver.KindMin:
		return driver.Min{StoppingMxHxM: d.StoppingMxHxM, MaxIterations: d.MaxIterations}, nil
	case driver.KindTime:
		return driver.Time{T: d.T, N: d.N, Alpha: d.Alpha}, nil
	}
	return nil, fmt.Errorf("spec: unknown driver kind %q", d.Kind)
}
