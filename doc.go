// Package raft implements the core of the Raft consensus algorithm: leader
// election, log replication, commitment, and membership changes, as described
// in "In Search of an Understandable Consensus Algorithm" (Ongaro & Ousterhout).
//
// The package is a self-contained state machine. It never opens a socket,
// never touches disk, and never spawns a goroutine; every side effect it
// needs — sending an RPC, persisting the term, applying a committed entry —
// is delegated to a Callbacks implementation supplied by the host. The host
// is responsible for networking, durable storage, the replicated state
// machine, and for calling Tick on a steady clock.
//
// A Server is not safe for concurrent use. The host must confine all calls
// to a single goroutine, or guard the Server with its own mutex; see the
// host package in this repository for a worked example that funnels every
// call through one command channel.
//
// Typical use:
//
//	srv := raft.NewServer(raft.Config{SelfID: 1}, callbacks)
//	srv.AddNode(1, true, local)
//	srv.AddNode(2, true, peer2)
//	srv.AddNode(3, true, peer3)
//	for range time.Tick(50 * time.Millisecond) {
//		srv.Tick(50 * time.Millisecond)
//	}
package raft
