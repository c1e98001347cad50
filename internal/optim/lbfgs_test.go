package optim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// shiftedQuadratic is Σ (x_i - c_i)² and checks the call order contract.
type shiftedQuadratic struct {
	t         *testing.T
	center    []float64
	funcCalls int
	gradCalls int
	lastX     []float64
}

func (q *shiftedQuadratic) objective() Objective {
	return Objective{
		Func: func(x []float64) (float64, error) {
			assert.Equal(q.t, q.funcCalls, q.gradCalls, "Func called twice without Grad")
			q.funcCalls++
			q.lastX = append(q.lastX[:0], x...)
			sum := 0.0
			for i, v := range x {
				d := v - q.center[i]
				sum += d * d
			}
			return sum, nil
		},
		Grad: func(x []float64) ([]float64, error) {
			assert.Equal(q.t, q.funcCalls, q.gradCalls+1, "Grad called before Func")
			assert.True(q.t, floats.Equal(q.lastX, x), "Grad called at a different point")
			q.gradCalls++
			g := make([]float64, len(x))
			for i, v := range x {
				g[i] = 2 * (v - q.center[i])
			}
			return g, nil
		},
	}
}

func TestLBFGS_MinimizesQuadratic(t *testing.T) {
	q := &shiftedQuadratic{t: t, center: []float64{3, -1, 0.5, 2}}
	x0 := []float64{0, 0, 0, 0}

	res, err := NewLBFGS().Minimize(x0, q.objective(), 50)
	require.NoError(t, err)

	assert.InDeltaSlice(t, q.center, res.X, 1e-4)
	assert.Less(t, res.F, 1e-6)
	assert.Equal(t, []float64{0, 0, 0, 0}, x0, "x0 is not modified")
	assert.NotEmpty(t, res.Status)
	assert.Equal(t, q.funcCalls, res.Evaluations)
	assert.Equal(t, q.funcCalls, q.gradCalls)
}

func TestLBFGS_RespectsEvaluationBound(t *testing.T) {
	q := &shiftedQuadratic{t: t, center: []float64{10, 10, 10}}

	res, err := NewLBFGS().Minimize([]float64{0, 0, 0}, q.objective(), 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, q.funcCalls, 5+maxLineSearch)
	assert.Less(t, res.F, 300.0, "improves on the starting value")
}

func TestLBFGS_FuncAndGradAlternateUnderBudget(t *testing.T) {
	for _, budget := range []int{1, 2, 3, 5, 10, 20} {
		q := &shiftedQuadratic{t: t, center: []float64{4, -2, 7, 1, 0.25}}

		res, err := NewLBFGS().Minimize([]float64{0, 0, 0, 0, 0}, q.objective(), budget)
		require.NoError(t, err, "budget %d", budget)
		assert.Equal(t, q.funcCalls, q.gradCalls, "budget %d: every value has its gradient", budget)
		assert.Equal(t, q.funcCalls, res.Evaluations, "budget %d", budget)
	}
}

func TestLBFGS_SingleEvaluationTakesFirstStep(t *testing.T) {
	q := &shiftedQuadratic{t: t, center: []float64{1, 1}}

	res, err := NewLBFGS().Minimize([]float64{0, 0}, q.objective(), 1)
	require.NoError(t, err)
	assert.Greater(t, q.funcCalls, 1, "the line search in progress completes")
	assert.Less(t, res.F, 2.0, "strictly below the starting value")
	assert.NotEqual(t, []float64{0, 0}, res.X)
	assert.Equal(t, q.funcCalls, q.gradCalls)
}

// gonum may request a value that is never followed by a gradient request.
func TestCallbacks_ValueWithoutGradientRequest(t *testing.T) {
	q := &shiftedQuadratic{t: t, center: []float64{2, 2}}
	cb := &callbacks{obj: q.objective(), bestF: math.Inf(1)}

	assert.Equal(t, 8.0, cb.fn([]float64{0, 0}))
	assert.Equal(t, 2.0, cb.fn([]float64{1, 1}))
	assert.Equal(t, 2, q.gradCalls, "gradient fetched with every value")

	grad := make([]float64, 2)
	cb.grad(grad, []float64{1, 1})
	assert.Equal(t, []float64{-2, -2}, grad)
	assert.Equal(t, 2, q.funcCalls, "cached gradient reused")

	cb.grad(grad, []float64{2, 2})
	assert.Equal(t, []float64{0, 0}, grad)
	assert.Equal(t, 3, q.funcCalls, "gradient at a new point evaluates it")
	assert.Equal(t, q.funcCalls, q.gradCalls)
	require.NoError(t, cb.err)
	assert.Equal(t, 0.0, cb.bestF)
}

func TestLBFGS_FuncErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	obj := Objective{
		Func: func(x []float64) (float64, error) {
			calls++
			if calls == 3 {
				return 0, boom
			}
			return x[0] * x[0], nil
		},
		Grad: func(x []float64) ([]float64, error) {
			return []float64{2 * x[0]}, nil
		},
	}

	_, err := NewLBFGS().Minimize([]float64{5}, obj, 20)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "no evaluations after the failure")
}

func TestLBFGS_GradErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	obj := Objective{
		Func: func(x []float64) (float64, error) { return x[0] * x[0], nil },
		Grad: func([]float64) ([]float64, error) { return nil, boom },
	}

	_, err := NewLBFGS().Minimize([]float64{5}, obj, 20)
	assert.ErrorIs(t, err, boom)
}

func TestLBFGS_InvalidArguments(t *testing.T) {
	q := &shiftedQuadratic{t: t, center: []float64{0}}

	_, err := NewLBFGS().Minimize([]float64{1}, q.objective(), 0)
	assert.Error(t, err)
	_, err = NewLBFGS().Minimize(nil, q.objective(), 10)
	assert.Error(t, err)
}
