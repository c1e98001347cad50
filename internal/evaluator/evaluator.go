// Package evaluator splits one joint (loss, gradient) computation into the
// two ordered calls a quasi-Newton optimizer makes: first the loss at a
// point, then the gradient at the same point.
//
// The Evaluator is a two-state machine:
//
//	EMPTY  --QueryLoss(x)-->      LOADED  (engine evaluated once, gradient stored)
//	LOADED --QueryGradient(x)-->  EMPTY   (stored gradient returned and cleared)
//
// Any other order is a protocol violation. The Evaluator is not safe for
// concurrent use.
package evaluator

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/born-style/internal/engine"
	"github.com/born-ml/born-style/internal/tensor"
)

// ErrProtocolViolation is returned when queries arrive out of order.
var ErrProtocolViolation = errors.New("evaluator protocol violation")

// State is the evaluator's cache state.
type State int

// Evaluator states.
const (
	Empty State = iota
	Loaded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Empty:
		return "EMPTY"
	case Loaded:
		return "LOADED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Function is a compiled objective; *engine.Function implements it.
type Function interface {
	Evaluate(candidate *tensor.RawTensor) (engine.Result, error)
	Shape() tensor.Shape
}

// Evaluator caches one (loss, gradient) pair between QueryLoss and
// QueryGradient.
type Evaluator struct {
	fn    Function
	state State
	point []float64 // Candidate of the pending gradient
	grad  []float64
	last  engine.Result
}

// New creates an Evaluator in the EMPTY state.
func New(fn Function) *Evaluator {
	return &Evaluator{fn: fn}
}

// State returns the current state.
func (e *Evaluator) State() State {
	return e.state
}

// Last returns the most recent successful evaluation.
func (e *Evaluator) Last() engine.Result {
	return e.last
}

// QueryLoss evaluates the objective at x, stores the gradient and returns
// the loss. It must be called in the EMPTY state. On an evaluation error
// the Evaluator stays EMPTY.
func (e *Evaluator) QueryLoss(x []float64) (float64, error) {
	if e.state != Empty {
		return 0, fmt.Errorf("%w: loss queried while a gradient is pending", ErrProtocolViolation)
	}

	candidate, err := tensor.FromSlice(x, e.fn.Shape())
	if err != nil {
		return 0, fmt.Errorf("query loss: %w", err)
	}
	res, err := e.fn.Evaluate(candidate)
	if err != nil {
		return 0, err
	}

	e.point = append(e.point[:0], x...)
	e.grad = res.Gradient.Flatten()
	e.last = res
	e.state = Loaded
	return res.Loss, nil
}

// QueryGradient returns the gradient stored by the preceding QueryLoss and
// clears it. It must be called in the LOADED state with the same point.
func (e *Evaluator) QueryGradient(x []float64) ([]float64, error) {
	if e.state != Loaded {
		return nil, fmt.Errorf("%w: gradient queried before loss", ErrProtocolViolation)
	}
	if !floats.Equal(x, e.point) {
		return nil, fmt.Errorf("%w: gradient queried at a different point than the loss", ErrProtocolViolation)
	}

	grad := e.grad
	e.grad = nil
	e.state = Empty
	return grad, nil
}
