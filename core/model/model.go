// Package model holds the read-only description of a magnetic system
// consumed by the input writer. It deliberately carries no behaviour
// beyond validation; the physics lives in the external engine.
package model

import "fmt"

// Mesh is a rectangular finite-difference mesh spanning the cuboid
// between P1 and P2, discretised into cells of size Cell.
type Mesh struct {
	P1   [3]float64
	P2   [3]float64
	Cell [3]float64
}

func (m Mesh) Validate() error {
	for i := 0; i < 3; i++ {
		if m.P2[i] <= m.P1[i] {
			return fmt.Errorf("mesh: p2[%d] must exceed p1[%d]", i, i)
		}
		if m.Cell[i] <= 0 {
			return fmt.Errorf("mesh: cell size [%d] must be positive", i)
		}
		if m.P2[i]-m.P1[i] < m.Cell[i] {
			return fmt.Errorf("mesh: cell size [%d] larger than region", i)
		}
	}
	return nil
}

// Nodes returns the number of cells along each axis.
func (m Mesh) Nodes() [3]int {
	var n [3]int
	for i := 0; i < 3; i++ {
		n[i] = int((m.P2[i]-m.P1[i])/m.Cell[i] + 0.5)
	}
	return n
}

// Term is an energy contribution. Each implementation maps onto one
// Specify block in the engine input.
type Term interface {
	// Kind is the stable name used in input generation and run specs.
	Kind() string
	Validate() error
}

// Exchange is the symmetric exchange interaction with stiffness A (J/m).
type Exchange struct {
	A float64
}

func (t Exchange) Kind() string { return "exchange" }

func (t Exchange) Validate() error {
	if t.A == 0 {
		return fmt.Errorf("exchange: A must be nonzero")
	}
	return nil
}

// Demag is the demagnetisation (magnetostatic) interaction.
type Demag struct{}

func (t Demag) Kind() string    { return "demag" }
func (t Demag) Validate() error { return nil }

// Zeeman is an external field H (A/m).
type Zeeman struct {
	H [3]float64
}

func (t Zeeman) Kind() string { return "zeeman" }

func (t Zeeman) Validate() error {
	if t.H == [3]float64{} {
		return fmt.Errorf("zeeman: field must be nonzero")
	}
	return nil
}

// UniaxialAnisotropy has constant K1 (J/m^3) along axis U.
type UniaxialAnisotropy struct {
	K1 float64
	U  [3]float64
}

func (t UniaxialAnisotropy) Kind() string { return "uniaxialanisotropy" }

func (t UniaxialAnisotropy) Validate() error {
	if t.K1 == 0 {
		return fmt.Errorf("uniaxialanisotropy: K1 must be nonzero")
	}
	if t.U == [3]float64{} {
		return fmt.Errorf("uniaxialanisotropy: axis must be nonzero")
	}
	return nil
}

// CubicAnisotropy has constant K1 (J/m^3) with axes U1 and U2.
type CubicAnisotropy struct {
	K1 float64
	U1 [3]float64
	U2 [3]float64
}

func (t CubicAnisotropy) Kind() string { return "cubicanisotropy" }

func (t CubicAnisotropy) Validate() error {
	if t.K1 == 0 {
		return fmt.Errorf("cubicanisotropy: K1 must be nonzero")
	}
	if t.U1 == [3]float64{} || t.U2 == [3]float64{} {
		return fmt.Errorf("cubicanisotropy: axes must be nonzero")
	}
	return nil
}

// DMI is the interfacial Dzyaloshinskii-Moriya interaction with
// constant D (J/m^2) for crystallographic class Cnv.
type DMI struct {
	D float64
}

func (t DMI) Kind() string { return "dmi" }

func (t DMI) Validate() error {
	if t.D == 0 {
		return fmt.Errorf("dmi: D must be nonzero")
	}
	return nil
}

// System is one magnetic system: geometry, saturation magnetisation,
// initial state and the active energy terms. The driver never mutates
// a System; results are returned separately.
type System struct {
	Name string
	Mesh Mesh
	// Ms is the saturation magnetisation (A/m).
	Ms float64
	// M0 is the uniform initial magnetisation direction (normalised by
	// the engine against Ms).
	M0     [3]float64
	Energy []Term
}

func (s System) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("system: name required")
	}
	if err := s.Mesh.Validate(); err != nil {
		return err
	}
	if s.Ms <= 0 {
		return fmt.Errorf("system: Ms must be positive")
	}
	if s.M0 == [3]float64{} {
		return fmt.Errorf("system: initial magnetisation must be nonzero")
	}
	if len(s.Energy) == 0 {
		return fmt.Errorf("system: at least one energy term required")
	}
	seen := map[string]bool{}
	for _, term := range s.Energy {
		if seen[term.Kind()] {
			return fmt.Errorf("system: duplicate energy term %q", term.Kind())
		}
		seen[term.Kind()] = true
		if err := term.Validate(); err != nil {
			return err
		}
	}
	return nil
}
