package fuzz

import (
	"testing"

	"github.com/blockberries/encounter/internal/handshake"
)

// FuzzHandleInitialMessage feeds arbitrary bytes to a responder. Malformed
// input must leave it in Initial with no reply.
func FuzzHandleInitialMessage(f *testing.F) {
	initiator, _ := handshake.New(handshake.RoleInitiator)
	valid, _ := initiator.CreateInitialMessage()

	f.Add(valid)
	f.Add([]byte{})
	f.Add(make([]byte, 32))
	f.Add(make([]byte, 33))

	f.Fuzz(func(t *testing.T, msg []byte) {
		responder, err := handshake.New(handshake.RoleResponder)
		if err != nil {
			t.Fatal(err)
		}
		reply, err := responder.HandleInitialMessage(msg)
		if err != nil {
			if reply != nil {
				t.Fatal("error with a reply")
			}
			if responder.State() != handshake.StateInitial {
				t.Fatalf("state %v after rejected message", responder.State())
			}
			return
		}
		if len(reply) != 32 {
			t.Fatalf("reply length %d", len(reply))
		}
		if !responder.IsComplete() {
			t.Fatal("accepted message did not complete the responder")
		}
	})
}

// FuzzHandleReply feeds arbitrary bytes to an initiator awaiting a reply.
func FuzzHandleReply(f *testing.F) {
	responder, _ := handshake.New(handshake.RoleResponder)
	seedInitiator, _ := handshake.New(handshake.RoleInitiator)
	initial, _ := seedInitiator.CreateInitialMessage()
	valid, _ := responder.HandleInitialMessage(initial)

	f.Add(valid)
	f.Add([]byte{})
	f.Add(make([]byte, 32))

	f.Fuzz(func(t *testing.T, msg []byte) {
		initiator, err := handshake.New(handshake.RoleInitiator)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := initiator.CreateInitialMessage(); err != nil {
			t.Fatal(err)
		}
		if err := initiator.HandleReply(msg); err != nil {
			if initiator.State() != handshake.StateAwaitingReply {
				t.Fatalf("state %v after rejected reply", initiator.State())
			}
			if _, ok := initiator.Keys(); ok {
				t.Fatal("keys available after rejected reply")
			}
			return
		}
		keys, ok := initiator.Keys()
		if !ok || len(keys.Sending) != 32 || len(keys.Receiving) != 32 {
			t.Fatal("accepted reply produced no keys")
		}
	})
}
