package raft

import (
	"fmt"

	"github.com/ihavec/kirindb-raft-db/model"
	"github.com/vmihailenco/msgpack/v5"
)

// encodeMembershipPayload builds the Entry.Payload for a membership entry.
func encodeMembershipPayload(nodeID NodeID, addr string) ([]byte, error) {
	return msgpack.Marshal(model.MembershipPayload{NodeID: uint32(nodeID), Addr: addr})
}

func decodeMembershipPayload(payload []byte) (model.MembershipPayload, error) {
	var p model.MembershipPayload
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("raft: decode membership payload: %w", err)
	}
	return p, nil
}

// offerMembershipEffect applies the offer-time membership effect, which per
// SPEC_FULL.md §4.3/§9 is exactly ADD_NONVOTING_NODE: the node becomes
// visible in the table immediately (non-voting, active) so the leader can
// start replicating to it without waiting for commit. Voting changes are
// deliberately NOT applied here — see applyMembershipEffect.
func (s *Server[C]) offerMembershipEffect(entry model.Entry) error {
	if entry.Type != model.AddNonvotingNode {
		if entry.Type.IsVotingChange() {
			s.votingConfigChangeInFlight = true
		}
		return nil
	}
	p, err := decodeMembershipPayload(entry.Payload)
	if err != nil {
		return err
	}
	id := NodeID(p.NodeID)
	if _, exists := s.nodes.get(id); exists {
		return nil
	}
	n := s.nodes.add(id, false, s.cb.NewNodeData(p))
	n.NextIndex = s.log.lastIndex() + 1
	s.cb.MembershipEvent(n, NodeAdded)
	return nil
}

// reverseMembershipOffer undoes offerMembershipEffect when the entry that
// introduced it is truncated away. A voting change never touched the node
// table at offer time (SPEC_FULL.md §4.3), so there's nothing to reverse
// there, but the in-flight flag it set must still be cleared or a
// truncated, never-to-be-applied entry would wedge it forever.
func (s *Server[C]) reverseMembershipOffer(entry model.Entry) error {
	if entry.Type.IsVotingChange() {
		s.votingConfigChangeInFlight = false
		return nil
	}
	if entry.Type != model.AddNonvotingNode {
		return nil
	}
	p, err := decodeMembershipPayload(entry.Payload)
	if err != nil {
		return err
	}
	id := NodeID(p.NodeID)
	if n, ok := s.nodes.get(id); ok {
		s.nodes.remove(id)
		s.cb.MembershipEvent(n, NodeRemoved)
	}
	return nil
}

// applyMembershipEffect applies the commit-time membership effect: ADD_NODE,
// DEMOTE_NODE, and REMOVE_NODE all take effect here, per SPEC_FULL.md §4.3/§9.
func (s *Server[C]) applyMembershipEffect(entry model.Entry) error {
	if !entry.Type.IsMembership() {
		return nil
	}
	p, err := decodeMembershipPayload(entry.Payload)
	if err != nil {
		return err
	}
	id := NodeID(p.NodeID)

	switch entry.Type {
	case model.AddNode:
		n, ok := s.nodes.get(id)
		if !ok {
			n = s.nodes.add(id, true, s.cb.NewNodeData(p))
			n.NextIndex = s.log.lastIndex() + 1
		} else {
			n.Voting = true
		}
		s.cb.MembershipEvent(n, NodePromoted)
	case model.DemoteNode:
		if n, ok := s.nodes.get(id); ok {
			n.Voting = false
			s.cb.MembershipEvent(n, NodeDemoted)
		}
	case model.RemoveNode:
		if n, ok := s.nodes.get(id); ok {
			s.nodes.remove(id)
			s.cb.MembershipEvent(n, NodeRemoved)
		}
		if id == s.nodes.self {
			s.shutdownPending = true
		}
	}

	if entry.Type.IsVotingChange() {
		s.votingConfigChangeInFlight = false
	}
	return nil
}
