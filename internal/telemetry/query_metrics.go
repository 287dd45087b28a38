// Package telemetry aggregates query metrics in process. Nothing leaves the
// machine; the query log in the metadata store is the durable record.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the histogram buckets in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one answered query.
type QueryEvent struct {
	Query       string
	ResultCount int
	TopScore    float32
	Latency     time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases a query and returns its words of at least three
// characters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries without results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config bounds the memory held by QueryMetrics.
type Config struct {
	TopTermsCapacity      int // default 100
	ZeroResultsCapacity   int // default 20
	RecentQueriesCapacity int // default 500
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   20,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	total        int64
	zeroResults  int64
	exactRepeats int64
	latency      map[LatencyBucket]int64
	since        time.Time

	topTerms      *lru.Cache[string, int64]
	recentQueries *lru.Cache[string, struct{}]
	zeroQueries   *CircularBuffer[string]
}

// NewQueryMetrics creates an empty collector.
func NewQueryMetrics(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	// lru.New only fails for a non-positive size.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		latency:       make(map[LatencyBucket]int64, len(Buckets)),
		since:         time.Now(),
		topTerms:      topTerms,
		recentQueries: recent,
		zeroQueries:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
	}
}

// Record adds one query to the aggregates.
func (m *QueryMetrics) Record(ev QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency[LatencyToBucket(ev.Latency)]++
	if ev.ResultCount == 0 {
		m.zeroResults++
		m.zeroQueries.Add(ev.Query)
	}

	hash := hashQuery(ev.Query)
	if m.recentQueries.Contains(hash) {
		m.exactRepeats++
	}
	m.recentQueries.Add(hash, struct{}{})

	for _, term := range ExtractTerms(ev.Query) {
		n, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, n+1)
	}
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:8])
}

// Snapshot returns the current aggregates with at most topN terms, most
// frequent first.
func (m *QueryMetrics) Snapshot(topN int) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		TotalQueries:        m.total,
		ZeroResultCount:     m.zeroResults,
		ExactRepeatCount:    m.exactRepeats,
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latency)),
		ZeroResultQueries:   m.zeroQueries.Items(),
		Since:               m.since,
	}
	for b, n := range m.latency {
		s.LatencyDistribution[b] = n
	}

	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.SliceStable(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	if topN > 0 && len(s.TopTerms) > topN {
		s.TopTerms = s.TopTerms[:topN]
	}
	return s
}
