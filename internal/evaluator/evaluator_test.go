package evaluator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-style/internal/engine"
	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/tensor"
)

// quadratic is Σ x² with gradient 2x, counting evaluations.
type quadratic struct {
	calls int
	fail  error
}

func (q *quadratic) Shape() tensor.Shape { return tensor.Shape{1, 1, 2, 3} }

func (q *quadratic) Evaluate(x *tensor.RawTensor) (engine.Result, error) {
	q.calls++
	if q.fail != nil {
		return engine.Result{}, q.fail
	}
	grad := tensor.Zeros(x.Shape())
	sum := 0.0
	for i, v := range x.Data() {
		sum += v * v
		grad.Data()[i] = 2 * v
	}
	return engine.Result{Loss: sum, Gradient: grad, Terms: loss.Terms{Content: sum}}, nil
}

func TestEvaluator_LossThenGradient(t *testing.T) {
	fn := &quadratic{}
	e := New(fn)
	x := []float64{1, 2, 3, 4, 5, 6}
	assert.Equal(t, Empty, e.State())

	l, err := e.QueryLoss(x)
	require.NoError(t, err)
	assert.Equal(t, 91.0, l)
	assert.Equal(t, Loaded, e.State())

	g, err := e.QueryGradient(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, g)
	assert.Equal(t, Empty, e.State())
	assert.Equal(t, 1, fn.calls, "one engine evaluation per point")
}

func TestEvaluator_MatchesDirectEvaluation(t *testing.T) {
	fn := &quadratic{}
	e := New(fn)
	x := []float64{-1, 0.5, 2, 0, 3, -4}

	direct, err := fn.Evaluate(mustTensor(t, x, fn.Shape()))
	require.NoError(t, err)

	l, err := e.QueryLoss(x)
	require.NoError(t, err)
	g, err := e.QueryGradient(x)
	require.NoError(t, err)

	assert.Equal(t, direct.Loss, l)
	assert.Equal(t, direct.Gradient.Data(), g)
	assert.Equal(t, direct.Loss, e.Last().Loss)
}

func TestEvaluator_GradientBeforeLoss(t *testing.T) {
	e := New(&quadratic{})

	_, err := e.QueryGradient(make([]float64, 6))
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, Empty, e.State())
}

func TestEvaluator_LossTwice(t *testing.T) {
	fn := &quadratic{}
	e := New(fn)
	x := make([]float64, 6)

	_, err := e.QueryLoss(x)
	require.NoError(t, err)
	_, err = e.QueryLoss(x)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, 1, fn.calls)
	assert.Equal(t, Loaded, e.State())
}

func TestEvaluator_GradientAtDifferentPoint(t *testing.T) {
	e := New(&quadratic{})

	_, err := e.QueryLoss([]float64{1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	_, err = e.QueryGradient([]float64{1, 1, 1, 1, 1, 2})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestEvaluator_GradientTwice(t *testing.T) {
	e := New(&quadratic{})
	x := make([]float64, 6)

	_, err := e.QueryLoss(x)
	require.NoError(t, err)
	_, err = e.QueryGradient(x)
	require.NoError(t, err)
	_, err = e.QueryGradient(x)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestEvaluator_EngineErrorKeepsEmpty(t *testing.T) {
	boom := errors.New("boom")
	e := New(&quadratic{fail: boom})

	_, err := e.QueryLoss(make([]float64, 6))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, Empty, e.State())
}

func TestEvaluator_WrongLength(t *testing.T) {
	e := New(&quadratic{})

	_, err := e.QueryLoss(make([]float64, 5))
	assert.Error(t, err)
	assert.Equal(t, Empty, e.State())
}

func TestEvaluator_DoesNotAliasInput(t *testing.T) {
	e := New(&quadratic{})
	x := []float64{1, 2, 3, 4, 5, 6}

	_, err := e.QueryLoss(x)
	require.NoError(t, err)
	x[0] = 100 // the optimizer owns x and may reuse it

	_, err = e.QueryGradient([]float64{1, 2, 3, 4, 5, 6})
	assert.NoError(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "EMPTY", Empty.String())
	assert.Equal(t, "LOADED", Loaded.String())
}

func mustTensor(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}
