package network

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/interlude-gg/interlude-chain/consensus"
	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/vm"
)

const syncBatchSize = 100

// Syncer applies blocks received from peers: gossiped tips via MsgBlock and
// catch-up ranges via MsgGetBlocks/MsgBlocks.
type Syncer struct {
	node  *Node
	bc    *core.Blockchain
	state core.State
	exec  *vm.Executor
	poa   *consensus.PoA
	log   *logrus.Entry
}

// NewSyncer wires a Syncer into the node's message handlers.
func NewSyncer(node *Node, bc *core.Blockchain, state core.State, exec *vm.Executor, poa *consensus.PoA, log *logrus.Logger) *Syncer {
	s := &Syncer{
		node:  node,
		bc:    bc,
		state: state,
		exec:  exec,
		poa:   poa,
		log:   log.WithField("module", "sync"),
	}
	node.Handle(MsgBlock, s.handleBlock)
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// RequestBlocks asks every peer for blocks following our current tip.
func (s *Syncer) RequestBlocks() {
	req, _ := json.Marshal(map[string]int64{"from": s.bc.Height() + 1})
	s.node.Broadcast(Message{Type: MsgGetBlocks, Payload: req}, "")
}

// applyBlock runs the full acceptance pipeline for a remote block: PoA
// validation, speculative execution against a state snapshot, state-root
// comparison, then chain append and state flush.
func (s *Syncer) applyBlock(block *core.Block) error {
	if err := s.poa.ValidateBlock(block); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	snap, err := s.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := s.exec.ExecuteBlock(block); err != nil {
		if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
			s.log.Fatalf("revert after failed execution: %v", rerr)
		}
		return fmt.Errorf("execute: %w", err)
	}

	root := s.state.ComputeRoot()
	if root != block.Header.StateRoot {
		if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
			s.log.Fatalf("revert after root mismatch: %v", rerr)
		}
		return fmt.Errorf("state root mismatch: got %s want %s", root, block.Header.StateRoot)
	}

	if err := s.bc.AddBlock(block); err != nil {
		if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
			s.log.Fatalf("revert after failed append: %v", rerr)
		}
		return fmt.Errorf("append: %w", err)
	}
	if err := s.state.Commit(); err != nil {
		s.log.WithField("height", block.Header.Height).
			Fatalf("block stored but state commit failed: %v", err)
	}
	return nil
}

func (s *Syncer) handleBlock(peer *Peer, msg Message) {
	var block core.Block
	if err := json.Unmarshal(msg.Payload, &block); err != nil {
		s.log.WithError(err).Warn("bad block message")
		return
	}
	if block.Header.Height <= s.bc.Height() {
		return // already have it
	}
	if block.Header.Height > s.bc.Height()+1 {
		// we are behind by more than one block; catch up instead
		s.RequestBlocks()
		return
	}
	if err := s.applyBlock(&block); err != nil {
		s.log.WithError(err).WithField("height", block.Header.Height).Warn("rejected block")
		return
	}
	s.log.WithFields(logrus.Fields{
		"height": block.Header.Height,
		"peer":   peer.ID,
	}).Debug("block applied")
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req struct {
		From int64 `json:"from"`
	}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.From < 1 {
		req.From = 1
	}

	var blocks []*core.Block
	tip := s.bc.Height()
	for h := req.From; h <= tip && len(blocks) < syncBatchSize; h++ {
		b, err := s.bc.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return
	}

	payload, err := json.Marshal(blocks)
	if err != nil {
		return
	}
	if err := peer.Send(Message{Type: MsgBlocks, Payload: payload}); err != nil {
		s.log.WithError(err).WithField("peer", peer.ID).Warn("send blocks failed")
	}
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var blocks []*core.Block
	if err := json.Unmarshal(msg.Payload, &blocks); err != nil {
		s.log.WithError(err).Warn("bad blocks message")
		return
	}

	applied := 0
	for _, block := range blocks {
		if block.Header.Height <= s.bc.Height() {
			continue
		}
		if err := s.applyBlock(block); err != nil {
			s.log.WithError(err).WithField("height", block.Header.Height).Warn("sync stopped")
			break
		}
		applied++
	}
	if applied > 0 {
		s.log.WithFields(logrus.Fields{
			"applied": applied,
			"height":  s.bc.Height(),
			"peer":    peer.ID,
		}).Info("synced blocks")
		// keep pulling until we reach the peer's tip
		s.RequestBlocks()
	}
}
