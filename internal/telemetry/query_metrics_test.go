package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[int](0)

	assert.Empty(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"how", "reset", "vpn", "token"}, ExtractTerms("How to Reset my VPN token?"))
	assert.Nil(t, ExtractTerms("  a be "))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a collector
	m := NewQueryMetrics(DefaultConfig())

	// When: recording a mix of queries
	m.Record(QueryEvent{Query: "printer jam", ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "Printer jam ", ResultCount: 3, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "quantum payroll", ResultCount: 0, Latency: 5 * time.Millisecond})

	// Then: the snapshot reflects them
	s := m.Snapshot(10)
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.Equal(t, int64(2), s.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP50])
	assert.Equal(t, []string{"quantum payroll"}, s.ZeroResultQueries)
	assert.InDelta(t, 33.3, s.ZeroResultPercentage(), 0.1)

	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "jam", Count: 2}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "printer", Count: 2}, s.TopTerms[1])
}

func TestQueryMetrics_SnapshotLimitsTerms(t *testing.T) {
	m := NewQueryMetrics(Config{})
	m.Record(QueryEvent{Query: "alpha beta gamma delta", ResultCount: 1})

	assert.Len(t, m.Snapshot(2).TopTerms, 2)
	assert.Len(t, m.Snapshot(0).TopTerms, 4)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Query: "expense report", ResultCount: 1})
		}()
	}
	wg.Wait()

	s := m.Snapshot(5)
	assert.Equal(t, int64(50), s.TotalQueries)
	assert.Equal(t, int64(49), s.ExactRepeatCount)
}

func TestSnapshot_ZeroQueries(t *testing.T) {
	s := NewQueryMetrics(DefaultConfig()).Snapshot(5)

	assert.Zero(t, s.ZeroResultPercentage())
	assert.Empty(t, s.TopTerms)
}
