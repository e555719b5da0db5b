package optimizer

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kagwert/risktool/internal/allocation"
	"github.com/kagwert/risktool/internal/metrics"
)

// evalCache memoizes candidate scores. Walk-forward and bootstrap runs
// revisit the same (weights, params, segment) combinations often enough that
// re-simulating them dominates runtime without it.
type evalCache struct {
	store  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

func newEvalCache() *evalCache {
	return &evalCache{
		store: gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// key builds a deterministic cache key from everything that influences a
// candidate's score on a segment.
func (c *evalCache) key(weights []float64, method allocation.Method, params allocation.Params, start, end int) string {
	var b strings.Builder
	b.WriteString(string(method))
	b.WriteByte('|')
	appendFloats(&b, weights)
	b.WriteByte('|')
	appendFloats(&b, params.Thresholds)
	appendFloats(&b, params.Levels)
	appendFloats(&b, params.BreakX)
	appendFloats(&b, params.BreakY)
	b.WriteString(strconv.FormatFloat(params.Steepness, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(params.Exponent, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(start))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(end))
	return b.String()
}

func appendFloats(b *strings.Builder, values []float64) {
	for _, v := range values {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte(',')
	}
	b.WriteByte(';')
}

func (c *evalCache) get(key string) (float64, bool) {
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		c.publish()
		return v.(float64), true
	}
	c.misses.Add(1)
	c.publish()
	return 0, false
}

func (c *evalCache) put(key string, score float64) {
	c.store.Set(key, score, gocache.DefaultExpiration)
}

func (c *evalCache) publish() {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return
	}
	metrics.UpdateCacheHitRatio(float64(hits) / float64(total))
}
