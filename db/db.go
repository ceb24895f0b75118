// Package db provides the reference host's replicated state machine: a
// small key-value store backed by VictoriaMetrics/fastcache, the same
// cache library the originating sketch picked for its (unfinished)
// StateMachine. Entries committed by the raft core are decoded here and
// applied to the cache; this package never talks to raft directly, it only
// implements the StateMachine interface the host's Callbacks.ApplyLog wires
// into.
package db

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/vmihailenco/msgpack/v5"
)

// Op is the kind of mutation a Command performs.
type Op uint8

const (
	Set Op = iota
	Delete
)

// Command is the msgpack encoding of a normal log entry's payload: the
// client-visible command this state machine understands.
type Command struct {
	Op    Op     `msgpack:"op"`
	Key   []byte `msgpack:"key"`
	Value []byte `msgpack:"value,omitempty"`
}

// EncodeCommand msgpack-encodes a Command for use as a log entry payload.
func EncodeCommand(cmd Command) ([]byte, error) {
	return msgpack.Marshal(cmd)
}

// StateMachine is what a host's raft.Callbacks.ApplyLog implementation
// delivers committed, decoded commands to.
type StateMachine interface {
	Apply(payload []byte) error
	Get(key []byte) ([]byte, bool)
}

type cacheStateMachine struct {
	c *fastcache.Cache
}

// NewStateMachine creates an in-memory key-value store sized maxBytes (0
// lets fastcache pick a small default, suitable for tests).
func NewStateMachine(maxBytes int) StateMachine {
	return &cacheStateMachine{c: fastcache.New(maxBytesOrMin(maxBytes))}
}

func maxBytesOrMin(n int) int {
	const min = 32 * 1024 * 1024 // fastcache's own minimum bucket size
	if n < min {
		return min
	}
	return n
}

// Apply decodes payload as a Command and applies it. It is called once per
// committed entry, in index order, by the host's ApplyLog callback.
func (d *cacheStateMachine) Apply(payload []byte) error {
	var cmd Command
	if err := msgpack.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("db: decode command: %w", err)
	}
	switch cmd.Op {
	case Set:
		d.c.Set(cmd.Key, cmd.Value)
	case Delete:
		d.c.Del(cmd.Key)
	default:
		return fmt.Errorf("db: unknown op %d", cmd.Op)
	}
	return nil
}

// Get is a local, non-consensus read; callers needing linearizable reads
// must route through the leader and a committed no-op, which this package
// does not do on its own.
func (d *cacheStateMachine) Get(key []byte) ([]byte, bool) {
	v, ok := d.c.HasGet(nil, key)
	return v, ok
}
