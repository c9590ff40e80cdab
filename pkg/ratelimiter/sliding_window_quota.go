package ratelimiter

import (
	"sync"
	"time"
)

// SlidingWindowQuota implements KeyedRateLimiter using a sliding window
// counter per key. Each key gets its own window of bucketed counters, which
// keeps memory bounded compared to a full request log while staying accurate
// at window boundaries.
//
// It backs the anonymous entry path: a fixed quota per guest identifier over
// a rolling 24-hour window.
type SlidingWindowQuota struct {
	limit      int           // Maximum number of requests allowed in the window per key.
	window     time.Duration // The total duration of the sliding window.
	numBuckets int           // The number of buckets the window is divided into.
	bucketSize time.Duration // The duration of a single bucket.

	entries map[string]*quotaEntry
	mutex   sync.Mutex
	now     func() time.Time // Injectable clock for tests.
}

type quotaEntry struct {
	buckets        []int
	currentBucket  int
	lastUpdateTime time.Time
}

// NewSlidingWindowQuota creates a new SlidingWindowQuota.
// limit: the maximum number of requests allowed in the window per key.
// window: the duration of the time window.
// numBuckets: the number of buckets to divide the window into.
func NewSlidingWindowQuota(limit int, window time.Duration, numBuckets int) *SlidingWindowQuota {
	if numBuckets <= 0 {
		numBuckets = 24 // One bucket per hour for a daily window.
	}
	return &SlidingWindowQuota{
		limit:      limit,
		window:     window,
		numBuckets: numBuckets,
		bucketSize: window / time.Duration(numBuckets),
		entries:    make(map[string]*quotaEntry),
		now:        time.Now,
	}
}

// slideWindow slides a key's window forward, resetting buckets that fell out.
func (q *SlidingWindowQuota) slideWindow(e *quotaEntry) {
	now := q.now()
	elapsed := now.Sub(e.lastUpdateTime)
	bucketsToSlide := int(elapsed / q.bucketSize)

	if bucketsToSlide > 0 {
		if bucketsToSlide >= q.numBuckets {
			for i := range e.buckets {
				e.buckets[i] = 0
			}
		} else {
			for i := 1; i <= bucketsToSlide; i++ {
				next := (e.currentBucket + i) % q.numBuckets
				e.buckets[next] = 0
			}
		}
		e.currentBucket = (e.currentBucket + bucketsToSlide) % q.numBuckets
		e.lastUpdateTime = now
	}
}

// AllowKey checks whether a request for the given key is within quota and, if
// so, counts it.
func (q *SlidingWindowQuota) AllowKey(key string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	e, ok := q.entries[key]
	if !ok {
		e = &quotaEntry{
			buckets:        make([]int, q.numBuckets),
			lastUpdateTime: q.now(),
		}
		q.entries[key] = e
	}

	q.slideWindow(e)

	var totalCount int
	for _, count := range e.buckets {
		totalCount += count
	}

	if totalCount < q.limit {
		e.buckets[e.currentBucket]++
		return true
	}

	return false
}
