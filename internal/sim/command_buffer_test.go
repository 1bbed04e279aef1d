package sim

import "testing"

func TestCommandBufferWraparound(t *testing.T) {
	buffer := NewCommandBuffer(3, nil)
	cmds := []Command{
		{Seq: 1, Type: "combat/attack"},
		{Seq: 2, Type: "inventory/take"},
		{Seq: 3, Type: "quest/activate"},
	}
	for _, cmd := range cmds {
		if !buffer.Push(cmd) {
			t.Fatalf("expected push to succeed for %+v", cmd)
		}
	}
	if buffer.Push(Command{Seq: 4}) {
		t.Fatalf("expected push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != len(cmds) {
		t.Fatalf("expected %d commands, got %d", len(cmds), len(drained))
	}
	for i, cmd := range drained {
		if cmd.Seq != cmds[i].Seq {
			t.Fatalf("expected drain order %d, got %d", cmds[i].Seq, cmd.Seq)
		}
	}
	// Push again to ensure the indices wrap correctly.
	for _, cmd := range []Command{{Seq: 5}, {Seq: 6}} {
		if !buffer.Push(cmd) {
			t.Fatalf("expected push to succeed after drain for %+v", cmd)
		}
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 2 {
		t.Fatalf("expected 2 commands after wraparound, got %d", len(wrapped))
	}
	if wrapped[0].Seq != 5 || wrapped[1].Seq != 6 {
		t.Fatalf("unexpected order after wraparound: %+v", wrapped)
	}
}

func TestCommandBufferOverflow(t *testing.T) {
	buffer := NewCommandBuffer(1, nil)
	if !buffer.Push(Command{Seq: 1}) {
		t.Fatalf("expected initial push to succeed")
	}
	if buffer.Push(Command{Seq: 2}) {
		t.Fatalf("expected push to fail when capacity exceeded")
	}
	drained := buffer.Drain()
	if len(drained) != 1 || drained[0].Seq != 1 {
		t.Fatalf("unexpected drained commands: %+v", drained)
	}
}

func TestCommandBufferDrainEmpty(t *testing.T) {
	buffer := NewCommandBuffer(4, nil)
	if drained := buffer.Drain(); drained != nil {
		t.Fatalf("expected nil drain on empty buffer, got %+v", drained)
	}
}
