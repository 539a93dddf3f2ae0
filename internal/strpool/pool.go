// Package strpool implements a reference-counted string interner (spec
// §4.6): acquire(str) returns a canonical pointer and bumps its refcount,
// allocating on first sight; release(ptr) decrements, freeing on zero.
// Two acquisitions of byte-equal inputs return the same canonical pointer,
// which the fan-out table (internal/fanout) relies on for hashtable
// identity.
package strpool

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// nbuckets is a large prime bucket count, matching spec §4.6 and the
// original source's HASHTABLE_NBUCKETS.
const nbuckets = 2063

// Entry is one pool slot: an owned byte string plus its live refcount.
type Entry struct {
	key      []byte
	refcount uint32
	next     *Entry
}

// Key returns the entry's interned bytes. Safe to read for the lifetime of
// any held reference.
func (e *Entry) Key() []byte { return e.key }

// Pool is a chained hashtable keyed by byte content, per spec §4.6. The
// hash is 64-bit xxHash, a real dependency shared with this pack's Redis
// client stack (github.com/redis/go-redis/v9 depends on it transitively);
// any high-quality byte hash satisfies the spec's contract.
type Pool struct {
	mu      sync.Mutex
	buckets [nbuckets]*Entry
}

// New returns an empty pool.
func New() *Pool { return &Pool{} }

func bucketFor(key []byte) int {
	return int(xxhash.Sum64(key) % nbuckets)
}

// Acquire returns the canonical entry for key, allocating it on first
// sight, and increments its refcount.
func (p *Pool) Acquire(key string) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := bucketFor([]byte(key))
	for e := p.buckets[b]; e != nil; e = e.next {
		if string(e.key) == key {
			e.refcount++
			return e
		}
	}
	e := &Entry{key: []byte(key), refcount: 1, next: p.buckets[b]}
	p.buckets[b] = e
	return e
}

// Lookup returns the canonical entry for key without affecting its
// refcount, for idempotency checks that only need pointer identity (spec
// §4.7's "Check socket_buckets[socket] for that canonical pointer").
func (p *Pool) Lookup(key string) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := bucketFor([]byte(key))
	for e := p.buckets[b]; e != nil; e = e.next {
		if string(e.key) == key {
			return e, true
		}
	}
	return nil, false
}

// Release decrements e's refcount, unlinking and freeing the entry once it
// reaches zero.
func (p *Pool) Release(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.refcount == 0 {
		return
	}
	e.refcount--
	if e.refcount != 0 {
		return
	}

	b := bucketFor(e.key)
	var prev *Entry
	for cur := p.buckets[b]; cur != nil; cur = cur.next {
		if cur == e {
			if prev == nil {
				p.buckets[b] = cur.next
			} else {
				prev.next = cur.next
			}
			return
		}
		prev = cur
	}
}

// Refcount returns e's current refcount, for tests and invariant checks.
func (p *Pool) Refcount(e *Entry) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return e.refcount
}
