package embed

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// scriptedEmbedder returns a fixed vector, failing while fail returns true.
type scriptedEmbedder struct {
	dims  int
	calls atomic.Int32
	fail  func(call int32) error
	delay time.Duration
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail != nil {
		if err := s.fail(n); err != nil {
			return nil, err
		}
	}
	vec := make([]float32, s.dims)
	vec[0] = 1
	return vec, nil
}

func (s *scriptedEmbedder) Dimensions() int   { return s.dims }
func (s *scriptedEmbedder) ModelName() string { return "scripted" }
func (s *scriptedEmbedder) Close() error      { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
