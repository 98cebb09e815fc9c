package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/interlude-gg/interlude-chain/core"
)

const maxPeers = 32

// Handler processes an inbound message from a peer.
type Handler func(peer *Peer, msg Message)

// Node is the P2P endpoint: it accepts inbound connections, maintains
// outbound peers, and routes messages to registered handlers.
type Node struct {
	id       string
	listen   string
	tlsCfg   *tls.Config
	mempool  *core.Mempool
	log      *logrus.Entry
	listener net.Listener

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]Handler

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewNode creates a node listening on the given address. tlsCfg may be nil
// for plaintext transport.
func NewNode(id, listen string, tlsCfg *tls.Config, mempool *core.Mempool, log *logrus.Logger) *Node {
	return &Node{
		id:       id,
		listen:   listen,
		tlsCfg:   tlsCfg,
		mempool:  mempool,
		log:      log.WithField("module", "network"),
		peers:    make(map[string]*Peer),
		handlers: make(map[MsgType]Handler),
		quit:     make(chan struct{}),
	}
}

// Handle registers a handler for a message type. Must be called before Start.
func (n *Node) Handle(t MsgType, h Handler) {
	n.handlers[t] = h
}

// Start begins listening for inbound peers and wires the default handlers.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsCfg != nil {
		ln, err = tls.Listen("tcp", n.listen, n.tlsCfg)
	} else {
		ln, err = net.Listen("tcp", n.listen)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.listen, err)
	}
	n.listener = ln

	if _, ok := n.handlers[MsgTx]; !ok {
		n.Handle(MsgTx, n.handleTx)
	}

	n.wg.Add(1)
	go n.acceptLoop()
	n.log.WithField("addr", n.listen).Info("p2p listening")
	return nil
}

// Stop closes the listener and all peer connections.
func (n *Node) Stop() {
	close(n.quit)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	for _, p := range n.peers {
		p.Close()
	}
	n.peers = make(map[string]*Peer)
	n.mu.Unlock()
	n.wg.Wait()
}

// AddPeer dials a remote node and starts reading from it.
func (n *Node) AddPeer(id, addr string) error {
	n.mu.RLock()
	_, exists := n.peers[id]
	count := len(n.peers)
	n.mu.RUnlock()
	if exists {
		return nil
	}
	if count >= maxPeers {
		return fmt.Errorf("peer limit reached (%d)", maxPeers)
	}

	peer, err := Connect(id, addr, n.tlsCfg)
	if err != nil {
		return err
	}

	hello, _ := json.Marshal(map[string]string{"id": n.id})
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		peer.Close()
		return err
	}

	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()

	n.wg.Add(1)
	go n.readLoop(peer)
	n.log.WithFields(logrus.Fields{"peer": id, "addr": addr}).Info("peer connected")
	return nil
}

// Broadcast sends a message to every connected peer, except the one named
// by skip (pass "" to reach everyone).
func (n *Node) Broadcast(msg Message, skip string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, p := range n.peers {
		if id == skip {
			continue
		}
		if err := p.Send(msg); err != nil {
			n.log.WithError(err).WithField("peer", id).Warn("broadcast failed")
		}
	}
}

// BroadcastTx gossips a transaction.
func (n *Node) BroadcastTx(tx *core.Transaction, skip string) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return
	}
	n.Broadcast(Message{Type: MsgTx, Payload: payload}, skip)
}

// BroadcastBlock gossips a freshly committed block.
func (n *Node) BroadcastBlock(b *core.Block) {
	payload, err := json.Marshal(b)
	if err != nil {
		return
	}
	n.Broadcast(Message{Type: MsgBlock, Payload: payload}, "")
}

// PeerCount reports the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.quit:
				return
			default:
			}
			n.log.WithError(err).Warn("accept failed")
			continue
		}

		n.mu.RLock()
		count := len(n.peers)
		n.mu.RUnlock()
		if count >= maxPeers {
			conn.Close()
			continue
		}

		peer := NewPeer("", conn.RemoteAddr().String(), conn)
		n.wg.Add(1)
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer n.wg.Done()
	defer n.removePeer(peer)

	for {
		msg, err := peer.Receive()
		if err != nil {
			select {
			case <-n.quit:
			default:
				n.log.WithField("peer", peer.ID).Debug("peer disconnected")
			}
			return
		}

		if msg.Type == MsgHello {
			var hello struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(msg.Payload, &hello); err == nil && hello.ID != "" {
				peer.ID = hello.ID
				n.mu.Lock()
				n.peers[hello.ID] = peer
				n.mu.Unlock()
			}
			continue
		}

		n.mu.RLock()
		handler, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if !ok {
			n.log.WithField("type", msg.Type).Debug("no handler for message")
			continue
		}
		handler(peer, msg)
	}
}

func (n *Node) handleTx(peer *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		n.log.WithError(err).Warn("bad tx message")
		return
	}
	if err := n.mempool.Add(&tx); err != nil {
		// duplicates are expected during gossip
		return
	}
	n.BroadcastTx(&tx, peer.ID)
}

func (n *Node) removePeer(peer *Peer) {
	peer.Close()
	if peer.ID == "" {
		return
	}
	n.mu.Lock()
	if n.peers[peer.ID] == peer {
		delete(n.peers, peer.ID)
	}
	n.mu.Unlock()
}
