// Package sampling provides configurable random-variate samplers for the
// simulation parameters, specified on the command line as either a constant
// or a named distribution, e.g. "1.0", "gamma:0.5,2.2", "uniform:0.5,1.5",
// or "gamma:0.5,2.2+1" for a distribution shifted by a constant.
package sampling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrUnknownDistribution = errors.New("unknown distribution")
	ErrBadParameters       = errors.New("bad distribution parameters")
)

// Sampler draws floats on demand.
type Sampler interface {
	Draw() float64
}

// Distribution is the parsed form of a sampler specification. It implements
// flag.Value so it can be given directly to flag.Var.
type Distribution struct {
	Name   string // "constant", "gamma", "uniform", "normal", "exponential", or "lognormal"
	Params []float64
	Shift  float64
}

// Constant returns a specification that always draws v.
func Constant(v float64) Distribution {
	return Distribution{Name: "constant", Params: []float64{v}}
}

// Set parses a specification string. A bare number is a constant; otherwise
// the format is name:p1,p2[+shift].
func (d *Distribution) Set(s string) error {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Constant(v)
		return nil
	}
	spec, shiftStr, shifted := strings.Cut(s, "+")
	name, paramStr, found := strings.Cut(spec, ":")
	if !found {
		return fmt.Errorf("%w %q", ErrUnknownDistribution, s)
	}
	dist := Distribution{Name: name}
	for _, p := range strings.Split(paramStr, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("%w: could not parse %q", ErrBadParameters, p)
		}
		dist.Params = append(dist.Params, v)
	}
	if shifted {
		v, err := strconv.ParseFloat(shiftStr, 64)
		if err != nil {
			return fmt.Errorf("%w: could not parse shift %q", ErrBadParameters, shiftStr)
		}
		dist.Shift = v
	}
	if _, err := dist.Sampler(rand.NewSource(0)); err != nil {
		return err
	}
	*d = dist
	return nil
}

func (d *Distribution) String() string {
	if d == nil || d.Name == "" {
		return ""
	}
	if d.Name == "constant" {
		return strconv.FormatFloat(d.Params[0], 'g', -1, 64)
	}
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	s := d.Name + ":" + strings.Join(params, ",")
	if d.Shift != 0 {
		s += "+" + strconv.FormatFloat(d.Shift, 'g', -1, 64)
	}
	return s
}

// Sampler builds the sampler drawing from src. Gamma takes (shape, scale),
// uniform (lo, hi), normal and lognormal (mu, sigma), exponential (rate).
func (d Distribution) Sampler(src rand.Source) (Sampler, error) {
	switch d.Name {
	case "constant":
		if err := d.wantParams(1); err != nil {
			return nil, err
		}
		return constant(d.Params[0]), nil
	case "gamma":
		if err := d.wantParams(2); err != nil {
			return nil, err
		}
		if d.Params[0] <= 0 || d.Params[1] <= 0 {
			return nil, fmt.Errorf("%w: gamma shape and scale must be positive", ErrBadParameters)
		}
		return shifted{distuv.Gamma{Alpha: d.Params[0], Beta: 1 / d.Params[1], Src: src}, d.Shift}, nil
	case "uniform":
		if err := d.wantParams(2); err != nil {
			return nil, err
		}
		if d.Params[0] > d.Params[1] {
			return nil, fmt.Errorf("%w: uniform bounds out of order", ErrBadParameters)
		}
		return shifted{distuv.Uniform{Min: d.Params[0], Max: d.Params[1], Src: src}, d.Shift}, nil
	case "normal":
		if err := d.wantParams(2); err != nil {
			return nil, err
		}
		if d.Params[1] <= 0 {
			return nil, fmt.Errorf("%w: normal sigma must be positive", ErrBadParameters)
		}
		return shifted{distuv.Normal{Mu: d.Params[0], Sigma: d.Params[1], Src: src}, d.Shift}, nil
	case "lognormal":
		if err := d.wantParams(2); err != nil {
			return nil, err
		}
		if d.Params[1] <= 0 {
			return nil, fmt.Errorf("%w: lognormal sigma must be positive", ErrBadParameters)
		}
		return shifted{distuv.LogNormal{Mu: d.Params[0], Sigma: d.Params[1], Src: src}, d.Shift}, nil
	case "exponential":
		if err := d.wantParams(1); err != nil {
			return nil, err
		}
		if d.Params[0] <= 0 {
			return nil, fmt.Errorf("%w: exponential rate must be positive", ErrBadParameters)
		}
		return shifted{distuv.Exponential{Rate: d.Params[0], Src: src}, d.Shift}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDistribution, d.Name)
	}
}

func (d Distribution) wantParams(n int) error {
	if len(d.Params) != n {
		return fmt.Errorf("%w: %s takes %d parameters, got %d", ErrBadParameters, d.Name, n, len(d.Params))
	}
	return nil
}

type constant float64

func (c constant) Draw() float64 { return float64(c) }

type rander interface {
	Rand() float64
}

type shifted struct {
	dist  rander
	shift float64
}

func (s shifted) Draw() float64 { return s.dist.Rand() + s.shift }
