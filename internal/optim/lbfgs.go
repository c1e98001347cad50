package optim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// maxLineSearch bounds the evaluations a line search may spend past the
// evaluation budget before the run is cut off.
const maxLineSearch = 20

// LBFGS minimizes with gonum's limited-memory BFGS and a bisection line
// search.
//
// The evaluation budget is checked at accepted iterates only, so the line
// search in progress always completes and the first step is always taken,
// even with a budget of one evaluation.
type LBFGS struct {
	// Store is the number of past updates kept; 0 uses gonum's default.
	Store int
	// GradientThreshold stops when the gradient's infinity norm falls
	// below it; 0 uses gonum's default.
	GradientThreshold float64
}

// NewLBFGS returns an LBFGS minimizer with default settings.
func NewLBFGS() *LBFGS {
	return &LBFGS{}
}

// Minimize implements Minimizer.
func (m *LBFGS) Minimize(x0 []float64, obj Objective, maxEvaluations int) (Result, error) {
	if maxEvaluations < 1 {
		return Result{}, fmt.Errorf("lbfgs: max evaluations must be >= 1, got %d", maxEvaluations)
	}
	if len(x0) == 0 {
		return Result{}, errors.New("lbfgs: empty starting point")
	}

	cb := &callbacks{obj: obj, bestF: math.Inf(1)}
	problem := optimize.Problem{
		Func: cb.fn,
		Grad: cb.grad,
	}
	settings := &optimize.Settings{
		FuncEvaluations:   maxEvaluations + maxLineSearch,
		GradientThreshold: m.GradientThreshold,
		Converger: &budget{
			cb:   cb,
			max:  maxEvaluations,
			x0:   append([]float64(nil), x0...),
			next: &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100},
		},
		Recorder: cb,
	}
	method := &optimize.LBFGS{
		Linesearcher: &optimize.Bisection{},
		Store:        m.Store,
	}

	res, err := optimize.Minimize(problem, append([]float64(nil), x0...), settings, method)
	if cb.err != nil {
		return Result{}, cb.err
	}
	if cb.bestX == nil {
		if err == nil {
			err = errors.New("objective never returned a finite value")
		}
		return Result{}, fmt.Errorf("lbfgs: %w", err)
	}

	status := optimize.NotTerminated.String()
	if res != nil {
		status = res.Status.String()
	}
	if err != nil {
		status = fmt.Sprintf("%s: %v", status, err)
	}
	return Result{
		X:           cb.bestX,
		F:           cb.bestF,
		Status:      status,
		Evaluations: cb.evaluations,
	}, nil
}

// budget stops the run at the first accepted iterate away from the start
// once the evaluation budget is spent, and defers to next otherwise.
type budget struct {
	cb    *callbacks
	max   int
	x0    []float64
	moved bool
	next  optimize.Converger
}

// Init implements optimize.Converger.
func (b *budget) Init(dim int) {
	b.moved = false
	b.next.Init(dim)
}

// Converged implements optimize.Converger.
func (b *budget) Converged(loc *optimize.Location) optimize.Status {
	if !b.moved && !floats.Equal(loc.X, b.x0) {
		b.moved = true
	}
	if b.moved && b.cb.evaluations >= b.max {
		return optimize.FunctionEvaluationLimit
	}
	return b.next.Converged(loc)
}

// callbacks bridges error-returning objective callbacks to gonum, whose
// callbacks cannot fail. The first error is kept, every later callback
// becomes a no-op, and the Recorder hook stops the run.
//
// gonum may request a value without ever asking for the gradient there.
// Every evaluation therefore queries Func and Grad back to back and keeps
// the gradient until gonum asks for it, so the objective always sees
// Func and Grad alternate at the same point.
//
// It also tracks the lowest value seen. gonum only reports points it has
// accepted as iterates, which leaves nothing when the run is cut off
// inside a line search.
type callbacks struct {
	obj         Objective
	err         error
	evaluations int
	bestX       []float64
	bestF       float64

	// Point and gradient of the latest evaluation.
	lastX    []float64
	lastGrad []float64
}

func (c *callbacks) fn(x []float64) float64 {
	if c.err != nil {
		return math.Inf(1)
	}
	f, err := c.evaluate(x)
	if err != nil {
		c.err = err
		return math.Inf(1)
	}
	return f
}

func (c *callbacks) grad(grad, x []float64) {
	if c.err != nil {
		clear(grad)
		return
	}
	if c.lastX == nil || !floats.Equal(x, c.lastX) {
		if _, err := c.evaluate(x); err != nil {
			c.err = err
			clear(grad)
			return
		}
	}
	copy(grad, c.lastGrad)
}

// evaluate queries the value and the gradient at x.
func (c *callbacks) evaluate(x []float64) (float64, error) {
	c.evaluations++
	f, err := c.obj.Func(x)
	if err != nil {
		return 0, err
	}
	g, err := c.obj.Grad(x)
	if err != nil {
		return 0, err
	}
	if len(g) != len(x) {
		return 0, fmt.Errorf("lbfgs: gradient has length %d, want %d", len(g), len(x))
	}
	c.lastX = append(c.lastX[:0], x...)
	c.lastGrad = append(c.lastGrad[:0], g...)
	if f < c.bestF {
		c.bestF = f
		c.bestX = append(c.bestX[:0], x...)
	}
	return f, nil
}

// Init implements optimize.Recorder.
func (c *callbacks) Init() error {
	return nil
}

// Record implements optimize.Recorder. A non-nil return stops gonum.
func (c *callbacks) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return c.err
}
