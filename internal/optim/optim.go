// Package optim adapts an external bounded quasi-Newton minimizer to the
// objective callbacks of the style transfer loop.
//
// The minimizer owns a flat parameter vector. It asks for the objective
// value and the gradient through two separate callbacks, always in that
// order and at the same point, and stops at the first accepted iterate
// once a budget of objective evaluations is spent.
package optim

// Objective is a differentiable function of a flat vector. Func and Grad
// are always called alternately for the same x, Func first.
type Objective struct {
	Func func(x []float64) (float64, error)
	Grad func(x []float64) ([]float64, error)
}

// Result is the outcome of one Minimize call.
type Result struct {
	X           []float64 // Best point found
	F           float64   // Objective value at X
	Status      string    // Why the minimizer stopped
	Evaluations int       // Objective evaluations performed
}

// Minimizer minimizes an Objective starting at x0. x0 is not modified.
//
// An error from a callback aborts the minimization and is returned as is.
// Termination for any other reason, including a failed line search, is
// reported through Result.Status with a nil error.
type Minimizer interface {
	Minimize(x0 []float64, obj Objective, maxEvaluations int) (Result, error)
}
