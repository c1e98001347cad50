package loss

import "fmt"

// Weights holds the fixed coefficients of the composite loss.
type Weights struct {
	Content    float64 // Multiplies the content term
	Style      float64 // Split evenly across the style layers
	Smoothness float64 // Multiplies the total-variation term
}

// Validate rejects weights that would silently disable a term or flip its sign.
func (w Weights) Validate() error {
	if w.Content <= 0 {
		return fmt.Errorf("content weight must be > 0, got %g", w.Content)
	}
	if w.Style <= 0 {
		return fmt.Errorf("style weight must be > 0, got %g", w.Style)
	}
	if w.Smoothness <= 0 {
		return fmt.Errorf("smoothness weight must be > 0, got %g", w.Smoothness)
	}
	return nil
}

// PerStyleLayer returns the weight applied to each of n style layers.
func (w Weights) PerStyleLayer(n int) float64 {
	if n <= 0 {
		return 0
	}
	return w.Style / float64(n)
}

// Terms is the unweighted breakdown of one loss evaluation.
type Terms struct {
	Content    float64
	Style      []float64 // One entry per style layer, in configured order
	Smoothness float64
}

// Total combines the terms:
//
//	Content·content + Σ (Style/n)·style_l + Smoothness·smoothness
func (w Weights) Total(t Terms) float64 {
	total := w.Content * t.Content
	perLayer := w.PerStyleLayer(len(t.Style))
	for _, s := range t.Style {
		total += perLayer * s
	}
	return total + w.Smoothness*t.Smoothness
}
