package server

import (
	"bytes"
	"testing"
	"time"

	"github.com/replisync/replisync"
	"github.com/replisync/replisync/internal/demoreplica"
)

func TestHandshakeFirstAndIdempotent(t *testing.T) {
	store := NewStore(nil)
	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)

	res := c.ReceiveHandshake(100, false)
	if !res.Accepted || res.Replaced {
		t.Fatalf("first handshake: %+v", res)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want Connected (no auth configured)", c.State())
	}

	res = c.ReceiveHandshake(100, false)
	if !res.Accepted || res.Replaced {
		t.Fatalf("repeated identical handshake should be idempotent: %+v", res)
	}
}

func TestHandshakeCollisionReplacesConnection(t *testing.T) {
	store := NewStore(nil)
	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)

	c.ReceiveHandshake(100, false)
	res := c.ReceiveHandshake(200, false)
	if !res.Accepted || !res.Replaced {
		t.Fatalf("differing timestamp should replace the connection: %+v", res)
	}
	if c.State() != StateConnected {
		t.Fatalf("state after replacement = %v, want Connected", c.State())
	}
}

func TestAuthorizeRejectNoEventRequired(t *testing.T) {
	store := NewStore(nil)
	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ReceiveHandshake(1, true)
	if c.State() != StateAuthorizing {
		t.Fatalf("state = %v, want Authorizing", c.State())
	}

	ok := c.Authorize(false)
	if ok {
		t.Fatal("Authorize(false) should report rejection")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after rejection = %v, want Disconnected", c.State())
	}
}

func TestAuthorizeAccept(t *testing.T) {
	store := NewStore(nil)
	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ReceiveHandshake(1, true)
	if !c.Authorize(true) {
		t.Fatal("Authorize(true) should succeed")
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want Connected", c.State())
	}
}

func TestScopeInWriteTickProducesCreateEntity(t *testing.T) {
	store := NewStore(nil)
	entity := store.CreateEntity()
	store.AddComponent(entity, demoreplica.KindPosition, demoreplica.NewPosition(1, 2))
	rec, _ := store.Entity(entity)

	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ScopeIn(rec)

	var buf bytes.Buffer
	seq, err := c.WriteTick(&buf, 0)
	if err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected bytes written for a pending create")
	}

	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)
	tick, count, err := replisync.ReadManagerHeader(&buf, replisync.ManagerEntityActions)
	if err != nil {
		t.Fatalf("ReadManagerHeader: %v", err)
	}
	if tick != 0 || count != 1 {
		t.Fatalf("header = (tick=%d, count=%d), want (0, 1)", tick, count)
	}
	action, err := replisync.ReadEntityAction(&buf, manifest, tick, func(k replisync.Kind) (uint8, bool) { return 1, true }, nil)
	if err != nil {
		t.Fatalf("ReadEntityAction: %v", err)
	}
	if action.Code != replisync.ActionCreateEntity {
		t.Fatalf("Code = %v", action.Code)
	}
	if len(action.Components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(action.Components))
	}

	// WriteTick rewrites the pending create on every tick until it is
	// acked, so ack it and confirm that a second tick with no changes
	// no longer resends it.
	c.Ack(seq)
	var buf2 bytes.Buffer
	if _, err := c.WriteTick(&buf2, 1); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if buf2.Len() != 0 {
		t.Fatal("acked create should not be resent")
	}
}

func TestScopeOutProducesDeleteEntityLast(t *testing.T) {
	store := NewStore(nil)
	entity := store.CreateEntity()
	rec, _ := store.Entity(entity)

	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ScopeIn(rec)
	var buf bytes.Buffer
	seq, _ := c.WriteTick(&buf, 0)
	c.Ack(seq)

	c.ScopeOut(entity)
	var buf2 bytes.Buffer
	if _, err := c.WriteTick(&buf2, 1); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}

	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)
	tick, count, err := replisync.ReadManagerHeader(&buf2, replisync.ManagerEntityActions)
	if err != nil {
		t.Fatalf("ReadManagerHeader: %v", err)
	}
	if tick != 1 || count != 1 {
		t.Fatalf("header = (tick=%d, count=%d), want (1, 1)", tick, count)
	}
	action, err := replisync.ReadEntityAction(&buf2, manifest, tick, func(k replisync.Kind) (uint8, bool) { return 1, true }, nil)
	if err != nil {
		t.Fatalf("ReadEntityAction: %v", err)
	}
	if action.Code != replisync.ActionDeleteEntity {
		t.Fatalf("Code = %v, want DeleteEntity", action.Code)
	}
}

func TestLossThenAckClearsDirtyBit(t *testing.T) {
	store := NewStore(nil)
	entity := store.CreateEntity()
	comp, _ := store.AddComponent(entity, demoreplica.KindPosition, demoreplica.NewPosition(0, 0))
	rec, _ := store.Entity(entity)

	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ScopeIn(rec)
	var createBuf bytes.Buffer
	createSeq, _ := c.WriteTick(&createBuf, 0)
	c.Ack(createSeq)

	pos := comp.Replica.(*demoreplica.Position)
	pos.SetX(7)

	var lostBuf bytes.Buffer
	lostSeq, err := c.WriteTick(&lostBuf, 1)
	if err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if lostBuf.Len() == 0 {
		t.Fatal("expected an UpdateComponent to be written")
	}

	// Simulate the packet being lost: nack re-merges the dirty bit.
	c.Nack(lostSeq)

	var resendBuf bytes.Buffer
	resendSeq, err := c.WriteTick(&resendBuf, 2)
	if err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if resendBuf.Len() == 0 {
		t.Fatal("expected the lost update to be resent after nack")
	}

	// This time the packet is acked, and the bit should not resend again.
	c.Ack(resendSeq)
	var quietBuf bytes.Buffer
	if _, err := c.WriteTick(&quietBuf, 3); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if quietBuf.Len() != 0 {
		t.Fatal("acked update should not be resent")
	}
}

func TestDuplicateCreateConsumesPayloadWithoutDuplicateEvent(t *testing.T) {
	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)

	var buf bytes.Buffer
	components := []replisync.ComponentInit{
		{Kind: demoreplica.KindPosition, ComponentKey: 1, Replica: demoreplica.NewPosition(1, 1)},
	}
	if err := replisync.WriteCreateEntity(&buf, 5, components); err != nil {
		t.Fatalf("WriteCreateEntity: %v", err)
	}
	// Append a second, identical CreateEntity record right after the
	// first, as a resent packet might carry both.
	if err := replisync.WriteCreateEntity(&buf, 5, components); err != nil {
		t.Fatalf("WriteCreateEntity: %v", err)
	}

	first, err := replisync.ReadEntityAction(&buf, manifest, 0, func(replisync.Kind) (uint8, bool) { return 1, true }, nil)
	if err != nil {
		t.Fatalf("ReadEntityAction (first): %v", err)
	}
	second, err := replisync.ReadEntityAction(&buf, manifest, 0, func(replisync.Kind) (uint8, bool) { return 1, true }, nil)
	if err != nil {
		t.Fatalf("ReadEntityAction (second): %v", err)
	}
	if first.EntityKey != second.EntityKey {
		t.Fatal("both records should decode to the same entity key")
	}
	if buf.Len() != 0 {
		t.Fatal("both records should be fully consumed from the reader")
	}
}

func TestDecodeCommandsEmitsCommandEventForScopedPawn(t *testing.T) {
	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)

	store := NewStore(nil)
	entity := store.CreateEntity()
	rec, _ := store.Entity(entity)

	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ScopeIn(rec)
	var discard bytes.Buffer
	c.WriteTick(&discard, 0) // sends the pending create; ScopeIn already assigned entity key 1
	c.AssignPawn(entity)

	var buf bytes.Buffer
	if err := replisync.WriteCommandsSection(&buf, 0, []replisync.CommandRecord{
		{EntityKey: 1, Kind: demoreplica.KindMove, Command: demoreplica.NewMove(1, 0)},
	}); err != nil {
		t.Fatalf("WriteCommandsSection: %v", err)
	}

	events, err := c.DecodeCommands(&buf, manifest)
	if err != nil {
		t.Fatalf("DecodeCommands: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventCommand {
		t.Fatalf("events = %+v, want a single EventCommand", events)
	}
	if events[0].User != UserKey(1) {
		t.Fatalf("User = %v, want 1", events[0].User)
	}
}

func TestDecodeCommandsRejectsNonPawnEntity(t *testing.T) {
	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)

	store := NewStore(nil)
	entity := store.CreateEntity()
	rec, _ := store.Entity(entity)

	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)
	c.ScopeIn(rec)
	var discard bytes.Buffer
	c.WriteTick(&discard, 0) // sends the pending create; the entity is not assigned as a pawn

	var buf bytes.Buffer
	if err := replisync.WriteCommandsSection(&buf, 0, []replisync.CommandRecord{
		{EntityKey: 1, Kind: demoreplica.KindMove, Command: demoreplica.NewMove(1, 0)},
	}); err != nil {
		t.Fatalf("WriteCommandsSection: %v", err)
	}

	if _, err := c.DecodeCommands(&buf, manifest); err == nil {
		t.Fatal("expected an error for a command targeting a non-pawn entity")
	}
}

func TestDecodeMessagesEmitsMessageEvents(t *testing.T) {
	store := NewStore(nil)
	c := NewConnection(UserKey(1), store, time.Second, 3*time.Second, nil, nil)

	var buf bytes.Buffer
	msgs := []replisync.Message{
		{Type: "chat", Payload: []byte("hello")},
	}
	if err := replisync.WriteMessagesSection(&buf, 3, msgs); err != nil {
		t.Fatalf("WriteMessagesSection: %v", err)
	}

	events, err := c.DecodeMessages(&buf)
	if err != nil {
		t.Fatalf("DecodeMessages: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventMessage {
		t.Fatalf("events = %+v, want a single EventMessage", events)
	}
	if events[0].Message.Type != "chat" || string(events[0].Message.Payload) != "hello" {
		t.Fatalf("Message = %+v, want {chat, hello}", events[0].Message)
	}
}
