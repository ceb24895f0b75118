// Package transport carries RequestVote and AppendEntries RPCs between
// reference-host processes over github.com/smallnest/rpcx, the same
// library and "register a receiver, dial a client per peer" shape the
// originating sketch used for its (incomplete) wire layer.
package transport

import (
	"context"
	"fmt"
	"time"

	rpcxclient "github.com/smallnest/rpcx/client"
	rpcxserver "github.com/smallnest/rpcx/server"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/model"
)

// ServiceName is the rpcx service name both Listener and Sender address.
const ServiceName = "Raft"

// Dialer is the capability a Server's node user-data (C) must provide so
// Sender can reach it: an rpcx client for the node's address, dialed
// lazily and cached. github.com/ihavec/kirindb-raft-db/config.Node
// implements this.
type Dialer interface {
	Client() (rpcxclient.XClient, error)
}

// Inbound is how a Listener turns wire RPCs back into Server calls. The
// reference host implements this by delegating straight to raft.Server's
// RecvRequestVote / RecvAppendEntries, serialized through its single
// command loop.
type Inbound interface {
	RecvRequestVote(from raft.NodeID, msg model.RequestVote) (model.RequestVoteResponse, error)
	RecvAppendEntries(from raft.NodeID, msg model.AppendEntries) (model.AppendEntriesResponse, error)
}

// receiver is the rpcx-registered type; its exported methods are the wire
// contract, named and shaped the way the originating sketch's handlers.go
// named AppendEntries and Vote.
type receiver struct {
	in Inbound
}

func (r *receiver) Vote(_ context.Context, req model.RequestVote, res *model.RequestVoteResponse) error {
	resp, err := r.in.RecvRequestVote(raft.NodeID(req.CandidateID), req)
	if err != nil {
		return err
	}
	*res = resp
	return nil
}

func (r *receiver) AppendEntries(_ context.Context, req model.AppendEntries, res *model.AppendEntriesResponse) error {
	resp, err := r.in.RecvAppendEntries(raft.NodeID(req.LeaderID), req)
	if err != nil {
		return err
	}
	*res = resp
	return nil
}

// Listener accepts inbound RPCs for one node's address.
type Listener struct {
	srv *rpcxserver.Server
}

// Listen registers in under ServiceName and starts serving addr in the
// background, mirroring the originating sketch's startRPCServer.
func Listen(addr string, in Inbound) (*Listener, error) {
	s := rpcxserver.NewServer()
	if err := s.RegisterName(ServiceName, &receiver{in: in}, ""); err != nil {
		return nil, fmt.Errorf("transport: register: %w", err)
	}
	go s.Serve("tcp", addr)
	return &Listener{srv: s}, nil
}

// Close stops accepting RPCs.
func (l *Listener) Close() error {
	return l.srv.Close()
}

// ResponseSink is how Sender hands an asynchronous RPC reply back to the
// host, which serializes the call into the Server's single command loop.
// SendRequestVote/SendAppendEntries return as soon as the RPC is
// dispatched; the eventual reply (or its absence, on error/timeout) comes
// back through these methods instead.
type ResponseSink[C any] interface {
	DeliverRequestVoteResponse(from *raft.Node[C], msg model.RequestVoteResponse)
	DeliverAppendEntriesResponse(from *raft.Node[C], msg model.AppendEntriesResponse)
}

// Sender implements the outbound half of raft.Callbacks: SendRequestVote
// and SendAppendEntries. Both dial lazily, call over rpcx with Timeout,
// and deliver the reply to sink from a background goroutine — never
// blocking the caller, since the core must not be kept waiting on the
// network.
type Sender[C Dialer] struct {
	Sink    ResponseSink[C]
	Timeout time.Duration
}

func (s Sender[C]) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 2 * time.Second
	}
	return s.Timeout
}

// SendRequestVote dispatches req to node and delivers the reply to Sink
// asynchronously.
func (s Sender[C]) SendRequestVote(node *raft.Node[C], req model.RequestVote) error {
	cl, err := node.UData.Client()
	if err != nil {
		return fmt.Errorf("transport: dial node %d: %w", node.ID, err)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
		defer cancel()
		var res model.RequestVoteResponse
		if err := cl.Call(ctx, "Vote", req, &res); err != nil {
			return
		}
		s.Sink.DeliverRequestVoteResponse(node, res)
	}()
	return nil
}

// SendAppendEntries dispatches req to node and delivers the reply to Sink
// asynchronously.
func (s Sender[C]) SendAppendEntries(node *raft.Node[C], req model.AppendEntries) error {
	cl, err := node.UData.Client()
	if err != nil {
		return fmt.Errorf("transport: dial node %d: %w", node.ID, err)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
		defer cancel()
		var res model.AppendEntriesResponse
		if err := cl.Call(ctx, "AppendEntries", req, &res); err != nil {
			return
		}
		s.Sink.DeliverAppendEntriesResponse(node, res)
	}()
	return nil
}
