package stats

import "sort"

// OverflowKey collects counts for keys that arrive after a CappedCounter
// is full.
const OverflowKey = "<other>"

// DefaultMaxKeys is the default number of distinct keys a CappedCounter
// tracks before folding new keys into OverflowKey.
const DefaultMaxKeys = 1000

// CappedCounter counts occurrences of string keys while bounding the number
// of distinct keys. Once maxKeys keys are tracked, increments for unseen
// keys are added to OverflowKey. Known keys keep counting.
//
// CappedCounter is not safe for concurrent use.
type CappedCounter struct {
	maxKeys int
	counts  map[string]int64
}

// NewCappedCounter creates a counter. maxKeys <= 0 selects DefaultMaxKeys.
func NewCappedCounter(maxKeys int) *CappedCounter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &CappedCounter{
		maxKeys: maxKeys,
		counts:  make(map[string]int64),
	}
}

// Increment adds one to key.
func (c *CappedCounter) Increment(key string) {
	c.Add(key, 1)
}

// Add adds n to key.
func (c *CappedCounter) Add(key string, n int64) {
	if _, ok := c.counts[key]; !ok && c.distinct() >= c.maxKeys {
		key = OverflowKey
	}
	c.counts[key] += n
}

// distinct returns the number of tracked keys, not counting the overflow
// bucket.
func (c *CappedCounter) distinct() int {
	n := len(c.counts)
	if _, ok := c.counts[OverflowKey]; ok {
		n--
	}
	return n
}

// Get returns the count for key.
func (c *CappedCounter) Get(key string) int64 {
	return c.counts[key]
}

// Len returns the number of entries, overflow bucket included.
func (c *CappedCounter) Len() int {
	return len(c.counts)
}

// Snapshot returns a copy of the counts.
func (c *CappedCounter) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// KeyCount is one entry of a counter.
type KeyCount struct {
	Key   string
	Count int64
}

// MostCommon returns up to n entries ordered by descending count.
// n <= 0 returns every entry.
func MostCommon(counts map[string]int64, n int) []KeyCount {
	out := make([]KeyCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, KeyCount{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
