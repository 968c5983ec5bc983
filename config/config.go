// Package config defines the runtime parameters a solver run is driven
// by, parsed from a YAML input file
package config

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// CFLAdaptParam bounds the per-point CFL adaptation. Factors multiply
// the local CFL; the result is clamped to [CFLMin, CFLMax].
type CFLAdaptParam struct {
	Enabled    bool    `yaml:"Enabled"`
	FactorDown float64 `yaml:"FactorDown"`
	FactorUp   float64 `yaml:"FactorUp"`
	CFLMin     float64 `yaml:"CFLMin"`
	CFLMax     float64 `yaml:"CFLMax"`

	// An iteration's under-relaxation factor at or above AcceptFactor
	// grows the local CFL; at or below LimitFactor it shrinks it.
	// In between, the CFL holds.
	AcceptFactor float64 `yaml:"AcceptFactor"`
	LimitFactor  float64 `yaml:"LimitFactor"`
}

// Parameters obtained from the YAML input file
type Parameters struct {
	Title          string        `yaml:"Title"`
	CFL            float64       `yaml:"CFL"`
	CFLAdapt       CFLAdaptParam `yaml:"CFLAdapt"`
	MaxIterations  int           `yaml:"MaxIterations"`
	ConvergenceTol float64       `yaml:"ConvergenceTol"` // On log10 of the RMS residual
	Multizone      bool          `yaml:"Multizone"`      // Enables BGS residual bookkeeping
	NRanks         int           `yaml:"NRanks"`
	CommKinds      []string      `yaml:"CommKinds"` // Exchange schedule per iteration
	Verbose        bool          `yaml:"Verbose"`
}

func (p *Parameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, p)
}

// Defaults returns a runnable parameter set for when no input file is
// supplied
func Defaults() *Parameters {
	return &Parameters{
		Title:          "unnamed case",
		CFL:            1.0,
		CFLAdapt:       DefaultCFLAdapt(),
		MaxIterations:  1000,
		ConvergenceTol: -8,
		NRanks:         1,
		CommKinds:      []string{"Solution"},
	}
}

func DefaultCFLAdapt() CFLAdaptParam {
	return CFLAdaptParam{
		Enabled:      true,
		FactorDown:   0.5,
		FactorUp:     1.05,
		CFLMin:       0.1,
		CFLMax:       100,
		AcceptFactor: 0.95,
		LimitFactor:  0.1,
	}
}

func (p *Parameters) Validate() error {
	if p.CFL <= 0 {
		return fmt.Errorf("CFL %g must be positive", p.CFL)
	}
	if p.NRanks < 1 {
		return fmt.Errorf("NRanks %d must be at least 1", p.NRanks)
	}
	a := p.CFLAdapt
	if a.Enabled {
		if a.FactorDown <= 0 || a.FactorDown > 1 {
			return fmt.Errorf("CFLAdapt FactorDown %g must be in (0,1]", a.FactorDown)
		}
		if a.FactorUp < 1 {
			return fmt.Errorf("CFLAdapt FactorUp %g must be at least 1", a.FactorUp)
		}
		if a.CFLMin <= 0 || a.CFLMax < a.CFLMin {
			return fmt.Errorf("CFLAdapt bounds [%g,%g] are invalid", a.CFLMin, a.CFLMax)
		}
		if a.LimitFactor >= a.AcceptFactor {
			return fmt.Errorf("CFLAdapt LimitFactor %g must be below AcceptFactor %g",
				a.LimitFactor, a.AcceptFactor)
		}
	}
	return nil
}

func (p *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", p.Title)
	fmt.Printf("%8.5f\t\t= CFL\n", p.CFL)
	fmt.Printf("%8d\t\t= MaxIterations\n", p.MaxIterations)
	fmt.Printf("%8.5f\t\t= ConvergenceTol (log10)\n", p.ConvergenceTol)
	fmt.Printf("[%d]\t\t\t= NRanks\n", p.NRanks)
	fmt.Printf("%v\t= CommKinds\n", p.CommKinds)
	if p.CFLAdapt.Enabled {
		fmt.Printf("CFL adaptation: down %g, up %g, bounds [%g,%g]\n",
			p.CFLAdapt.FactorDown, p.CFLAdapt.FactorUp,
			p.CFLAdapt.CFLMin, p.CFLAdapt.CFLMax)
	}
}
