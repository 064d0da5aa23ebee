package controllers

import "github.com/san-kum/natkin/internal/sim"

// PID drives the coordinates toward Target with one gain set shared by every
// coordinate. The derivative term uses the measured velocities rather than
// differencing the error.
type PID struct {
	Kp, Ki, Kd float64
	Target     []float64

	integral []float64
	prevT    float64
	started  bool
}

func NewPID(kp, ki, kd float64, target []float64) *PID {
	return &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Target:   append([]float64(nil), target...),
		integral: make([]float64, len(target)),
	}
}

func (p *PID) Compute(x sim.State, t float64) sim.Control {
	half := len(x) / 2
	u := make(sim.Control, half)
	if len(p.Target) != half {
		return u
	}

	dt := 0.0
	if p.started {
		dt = t - p.prevT
	}
	p.prevT, p.started = t, true

	for i := range u {
		e := p.Target[i] - x[i]
		if dt > 0 {
			p.integral[i] += e * dt
		}
		u[i] = p.Kp*e + p.Ki*p.integral[i] - p.Kd*x[half+i]
	}
	return u
}

// Reset clears the integral state.
func (p *PID) Reset() {
	clear(p.integral)
	p.started = false
}
