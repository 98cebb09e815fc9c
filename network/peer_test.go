package network

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
)

func pipePeers() (*Peer, *Peer) {
	a, b := net.Pipe()
	return NewPeer("a", "pipe", a), NewPeer("b", "pipe", b)
}

func TestPeerRoundTrip(t *testing.T) {
	alice, bob := pipePeers()
	defer alice.Close()
	defer bob.Close()

	payload, _ := json.Marshal(map[string]string{"node_id": "alice"})
	go func() {
		if err := alice.Send(Message{Type: MsgHello, Payload: payload}); err != nil {
			t.Error(err)
		}
	}()

	msg, err := bob.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgHello {
		t.Errorf("type: %s", msg.Type)
	}
	var hello map[string]string
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		t.Fatal(err)
	}
	if hello["node_id"] != "alice" {
		t.Errorf("payload: %v", hello)
	}
}

func TestPeerRejectsOversizeFrame(t *testing.T) {
	conn, remote := net.Pipe()
	p := NewPeer("p", "pipe", conn)
	defer p.Close()
	defer remote.Close()

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 33*1024*1024)
		remote.Write(header[:])
	}()

	if _, err := p.Receive(); err == nil {
		t.Fatal("oversize frame accepted")
	}
}

func TestPeerSendAfterClose(t *testing.T) {
	alice, bob := pipePeers()
	bob.Close()
	alice.Close()
	if err := alice.Send(Message{Type: MsgTx}); err == nil {
		t.Fatal("send on closed peer succeeded")
	}
}

func TestPeerFramesBackToBack(t *testing.T) {
	alice, bob := pipePeers()
	defer alice.Close()
	defer bob.Close()

	go func() {
		for _, typ := range []MsgType{MsgTx, MsgBlock, MsgGetBlocks} {
			if err := alice.Send(Message{Type: typ, Payload: json.RawMessage(`{}`)}); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for _, want := range []MsgType{MsgTx, MsgBlock, MsgGetBlocks} {
		msg, err := bob.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if msg.Type != want {
			t.Errorf("got %s want %s", msg.Type, want)
		}
	}
}
