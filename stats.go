package remotefs

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Stats counts how a file's reads were served.
type Stats struct {
	Requests     uint64 // ranges requested
	CacheHits    uint64 // chunk spans served from cache
	CacheMisses  uint64 // chunk spans that needed a fetch
	FetchCalls   uint64 // calls made to the fetcher
	FetchedBytes uint64
	CachedBytes  uint64 // bytes served from cache
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Requests:     s.Requests + o.Requests,
		CacheHits:    s.CacheHits + o.CacheHits,
		CacheMisses:  s.CacheMisses + o.CacheMisses,
		FetchCalls:   s.FetchCalls + o.FetchCalls,
		FetchedBytes: s.FetchedBytes + o.FetchedBytes,
		CachedBytes:  s.CachedBytes + o.CachedBytes,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d requests, %d hits (%s), %d misses, %d fetches (%s)",
		s.Requests, s.CacheHits, humanize.IBytes(s.CachedBytes), s.CacheMisses, s.FetchCalls, humanize.IBytes(s.FetchedBytes))
}

type fileStats struct {
	requests     atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	fetchCalls   atomic.Uint64
	fetchedBytes atomic.Uint64
	cachedBytes  atomic.Uint64
}

func (s *fileStats) snapshot() Stats {
	return Stats{
		Requests:     s.requests.Load(),
		CacheHits:    s.cacheHits.Load(),
		CacheMisses:  s.cacheMisses.Load(),
		FetchCalls:   s.fetchCalls.Load(),
		FetchedBytes: s.fetchedBytes.Load(),
		CachedBytes:  s.cachedBytes.Load(),
	}
}
