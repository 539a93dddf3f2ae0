// Package fanout implements the bidirectional, reference-counted mapping
// between sockets and channel names (spec §3, §4.7): idempotent subscribe,
// precise unsubscribe, cascading cleanup on disconnect, and broadcast of
// inbound Redis messages to every subscribed socket.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pepnova/wsgate/internal/strpool"
	"github.com/pepnova/wsgate/internal/wireenv"
	"github.com/pepnova/wsgate/internal/wserr"
)

// Socket is the subset of a client connection the fan-out table needs: a
// stable identity and a way to deliver a framed text message.
type Socket interface {
	ID() uint64
	SendText(payload []byte)
}

// PubSubClient is the backing Redis glue (internal/redispubsub) the table
// drives. Subscribe/Unsubscribe issue the wire commands; the reply
// callbacks below (OnSubscribeReply etc.) are how their *results* are fed
// back, matching spec §4.7's requirement that local state only commits on
// the Redis reply.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

type socketEntry struct {
	id   uint64
	sock Socket
}

// Table owns the two hashtables described in spec §3, layered over a
// string pool and a Redis pub/sub client.
type Table struct {
	mu  sync.Mutex
	log *slog.Logger

	pool   *strpool.Pool
	client PubSubClient

	// channelBuckets and socketBuckets hold insertion-ordered slices as
	// their bucket values, not nested maps, because spec §5 requires fan-out to visit
	// subscribers "in the order they appear in the channel's chain...
	// insertion order at the time of each successful subscribe" — a
	// guarantee a Go map's iteration order cannot provide.
	channelBuckets map[*strpool.Entry][]socketEntry
	socketBuckets  map[uint64][]*strpool.Entry

	socketByID map[uint64]Socket
	pendingSub map[string][]uint64

	// StrictInvariants enables the debug consistency assertion spec §4.7
	// calls for in unsubscribe. Tests enable it; production leaves it off
	// to avoid paying for the check on every call.
	StrictInvariants bool
}

// New returns an empty fan-out table.
func New(pool *strpool.Pool, client PubSubClient, log *slog.Logger) *Table {
	return &Table{
		log:            log,
		pool:           pool,
		client:         client,
		channelBuckets: make(map[*strpool.Entry][]socketEntry),
		socketBuckets:  make(map[uint64][]*strpool.Entry),
		socketByID:     make(map[uint64]Socket),
		pendingSub:     make(map[string][]uint64),
	}
}

// Publish fires a Redis PUBLISH without touching any local state (spec
// §4.7). It returns wserr.Disconnected if the publish connection is down.
func (t *Table) Publish(ctx context.Context, channel, payload string) error {
	if err := t.client.Publish(ctx, channel, []byte(payload)); err != nil {
		return fmt.Errorf("%w: %v", wserr.Disconnected, err)
	}
	return nil
}

// Subscribe registers socket's interest in channel. It is idempotent: a
// socket already subscribed to channel gets Ok without a second Redis
// SUBSCRIBE. Otherwise it issues SUBSCRIBE and queues the registration;
// local state only commits once OnSubscribeReply observes the reply.
func (t *Table) Subscribe(ctx context.Context, channel string, sock Socket) error {
	t.mu.Lock()
	if t.hasChannelLocked(sock.ID(), channel) || idInSlice(t.pendingSub[channel], sock.ID()) {
		t.mu.Unlock()
		return nil
	}
	t.pendingSub[channel] = append(t.pendingSub[channel], sock.ID())
	t.socketByID[sock.ID()] = sock
	t.mu.Unlock()

	if err := t.client.Subscribe(ctx, channel); err != nil {
		t.mu.Lock()
		t.pendingSub[channel] = removeID(t.pendingSub[channel], sock.ID())
		t.mu.Unlock()
		return fmt.Errorf("%w: %v", wserr.Disconnected, err)
	}
	return nil
}

// hasChannelLocked reports whether socket id is already registered for
// channel. Caller must hold t.mu.
func (t *Table) hasChannelLocked(id uint64, channel string) bool {
	entry, ok := t.pool.Lookup(channel)
	if !ok {
		return false
	}
	for _, e := range t.socketBuckets[id] {
		if e == entry {
			return true
		}
	}
	return false
}

// OnSubscribeReply commits the oldest pending subscribe for channel, per
// spec §4.7's ordering guarantee (the subscribe connection is a single
// serialized stream, so replies arrive in the order commands were issued).
func (t *Table) OnSubscribeReply(channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.pendingSub[channel]
	if len(queue) == 0 {
		return // spurious or already-cleaned-up reply
	}
	sid := queue[0]
	t.pendingSub[channel] = queue[1:]

	sock, ok := t.socketByID[sid]
	if !ok {
		return // socket disconnected before its subscribe confirmed
	}

	channelEntry := t.pool.Acquire(channel)
	socketEntryRef := t.pool.Acquire(channel)

	t.channelBuckets[channelEntry] = append(t.channelBuckets[channelEntry], socketEntry{id: sid, sock: sock})
	t.socketBuckets[sid] = append(t.socketBuckets[sid], socketEntryRef)
}

// Unsubscribe removes (channel, socket). Unlike Subscribe, this commits
// local state eagerly (spec §4.7: "local presence is the authority") and
// only talks to Redis when the channel's bucket becomes empty.
func (t *Table) Unsubscribe(ctx context.Context, channel string, sock Socket) error {
	t.mu.Lock()
	entry, ok := t.pool.Lookup(channel)
	if !ok {
		t.mu.Unlock()
		return nil
	}
	if !t.hasChannelLocked(sock.ID(), channel) {
		t.mu.Unlock()
		return nil
	}
	empty := t.unsubscribeLocked(entry, sock.ID())
	t.assertConsistencyLocked()
	t.mu.Unlock()

	if empty {
		if err := t.client.Unsubscribe(ctx, channel); err != nil {
			return fmt.Errorf("%w: %v", wserr.Disconnected, err)
		}
	}
	return nil
}

// UnsubscribeAll tears down every subscription socket holds, cascading
// cleanup on disconnect (spec §4.7, §4.8).
func (t *Table) UnsubscribeAll(ctx context.Context, sock Socket) error {
	t.mu.Lock()
	entries := append([]*strpool.Entry(nil), t.socketBuckets[sock.ID()]...)
	var toIssue []string
	for _, entry := range entries {
		if t.unsubscribeLocked(entry, sock.ID()) {
			toIssue = append(toIssue, string(entry.Key()))
		}
	}
	delete(t.socketByID, sock.ID())
	for ch, q := range t.pendingSub {
		t.pendingSub[ch] = removeID(q, sock.ID())
	}
	t.assertConsistencyLocked()
	t.mu.Unlock()

	var firstErr error
	for _, ch := range toIssue {
		if err := t.client.Unsubscribe(ctx, ch); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", wserr.Disconnected, err)
		}
	}
	return firstErr
}

// unsubscribeLocked removes the (entry, socketID) pair from both tables
// and releases both of its pool references (spec §4.7, §8's "refcount ...
// equals live subscriptions times two"). Caller must hold t.mu. Reports
// whether the channel's bucket is now empty.
func (t *Table) unsubscribeLocked(entry *strpool.Entry, sid uint64) bool {
	socketList := t.socketBuckets[sid]
	for i, e := range socketList {
		if e == entry {
			socketList = append(socketList[:i], socketList[i+1:]...)
			break
		}
	}
	if len(socketList) == 0 {
		delete(t.socketBuckets, sid)
	} else {
		t.socketBuckets[sid] = socketList
	}
	t.pool.Release(entry)

	channelList := t.channelBuckets[entry]
	for i, se := range channelList {
		if se.id == sid {
			channelList = append(channelList[:i], channelList[i+1:]...)
			break
		}
	}
	empty := len(channelList) == 0
	if empty {
		delete(t.channelBuckets, entry)
	} else {
		t.channelBuckets[entry] = channelList
	}
	t.pool.Release(entry)

	return empty
}

// OnMessage fans a Redis "message channel payload" reply out to every
// socket subscribed to channel, in chain order (spec §4.7, §5).
func (t *Table) OnMessage(channel, payload string) {
	t.mu.Lock()
	entry, ok := t.pool.Lookup(channel)
	var targets []Socket
	if ok {
		for _, se := range t.channelBuckets[entry] {
			targets = append(targets, se.sock)
		}
	}
	t.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	env := wireenv.EncodeServerEnvelope(channel, payload)
	for _, s := range targets {
		s.SendText(env)
	}
}

// assertConsistencyLocked is the debug assertion spec §4.7 calls for: if a
// (channel, socket) pair exists in socketBuckets it must exist in
// channelBuckets. Caller must hold t.mu. Only runs when StrictInvariants
// is set, mirroring the original source's assert() (compiled out of
// production builds, enabled in tests).
func (t *Table) assertConsistencyLocked() {
	if !t.StrictInvariants {
		return
	}
	for sid, entries := range t.socketBuckets {
		for _, entry := range entries {
			found := false
			for _, se := range t.channelBuckets[entry] {
				if se.id == sid {
					found = true
					break
				}
			}
			if !found {
				panic(fmt.Sprintf("fanout: consistency violated for socket %d channel %q", sid, entry.Key()))
			}
		}
	}
}

func idInSlice(ids []uint64, target uint64) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func removeID(ids []uint64, target uint64) []uint64 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
