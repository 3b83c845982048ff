package client_test

import (
	"bytes"
	"testing"

	"github.com/replisync/replisync"
	"github.com/replisync/replisync/client"
	"github.com/replisync/replisync/internal/demoreplica"
)

func newTestManager() *client.ReplicaManager {
	manifest := replisync.NewManifest()
	demoreplica.RegisterAll(manifest)
	rm := client.NewReplicaManager(manifest, client.NewPredictor())
	rm.RegisterMaskWidth(demoreplica.KindPosition, 1)
	rm.RegisterMaskWidth(demoreplica.KindHealth, 1)
	rm.RegisterMaskWidth(demoreplica.KindMove, 1)
	return rm
}

// section wraps a body of already-encoded action records with the
// §4.E manager-section header ApplyEntityActions now expects.
func section(t *testing.T, tick uint16, count int, body []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := replisync.WriteManagerHeader(&buf, replisync.ManagerEntityActions, tick, count); err != nil {
		t.Fatalf("WriteManagerHeader: %v", err)
	}
	buf.Write(body)
	return &buf
}

func TestApplyCreateEntitySpawnsAndDuplicateIsNoEvent(t *testing.T) {
	rm := newTestManager()

	var body bytes.Buffer
	components := []replisync.ComponentInit{
		{Kind: demoreplica.KindPosition, ComponentKey: 1, Replica: demoreplica.NewPosition(3, 4)},
	}
	if err := replisync.WriteCreateEntity(&body, 10, components); err != nil {
		t.Fatalf("WriteCreateEntity: %v", err)
	}
	// A resent copy of the same record right behind it.
	if err := replisync.WriteCreateEntity(&body, 10, components); err != nil {
		t.Fatalf("WriteCreateEntity: %v", err)
	}

	events, err := rm.ApplyEntityActions(section(t, 0, 2, body.Bytes()))
	if err != nil {
		t.Fatalf("ApplyEntityActions: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one spawn event despite the duplicate, got %d", len(events))
	}
	if events[0].Kind != client.EventSpawnEntity {
		t.Fatalf("Kind = %v, want EventSpawnEntity", events[0].Kind)
	}
	if !rm.HasEntity(10) {
		t.Fatal("entity 10 should be known")
	}

	pos, ok := client.GetComponentByType[*demoreplica.Position](rm, 10)
	if !ok {
		t.Fatal("expected a Position component")
	}
	if pos.X != 3 || pos.Y != 4 {
		t.Fatalf("Position = (%d,%d), want (3,4)", pos.X, pos.Y)
	}
}

func TestApplyDeleteEntityUnknownKeyIsNoop(t *testing.T) {
	rm := newTestManager()

	var body bytes.Buffer
	if err := replisync.WriteDeleteEntity(&body, 999); err != nil {
		t.Fatalf("WriteDeleteEntity: %v", err)
	}
	events, err := rm.ApplyEntityActions(section(t, 0, 1, body.Bytes()))
	if err != nil {
		t.Fatalf("ApplyEntityActions: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for an unknown entity delete, got %d", len(events))
	}
}

func TestApplyDeleteEntityRemovesComponents(t *testing.T) {
	rm := newTestManager()

	var createBody bytes.Buffer
	components := []replisync.ComponentInit{
		{Kind: demoreplica.KindPosition, ComponentKey: 1, Replica: demoreplica.NewPosition(0, 0)},
	}
	replisync.WriteCreateEntity(&createBody, 1, components)
	if _, err := rm.ApplyEntityActions(section(t, 0, 1, createBody.Bytes())); err != nil {
		t.Fatalf("create: %v", err)
	}

	var deleteBody bytes.Buffer
	replisync.WriteDeleteEntity(&deleteBody, 1)
	events, err := rm.ApplyEntityActions(section(t, 1, 1, deleteBody.Bytes()))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(events) != 1 || events[0].Kind != client.EventDespawnEntity {
		t.Fatalf("events = %+v, want a single EventDespawnEntity", events)
	}
	if rm.HasEntity(1) {
		t.Fatal("entity 1 should be gone")
	}
	if _, ok := client.GetComponentByType[*demoreplica.Position](rm, 1); ok {
		t.Fatal("component should be gone along with the entity")
	}
}

func TestAssignPawnClonesComponentsIntoPawnStore(t *testing.T) {
	rm := newTestManager()

	var createBody bytes.Buffer
	components := []replisync.ComponentInit{
		{Kind: demoreplica.KindPosition, ComponentKey: 1, Replica: demoreplica.NewPosition(5, 5)},
	}
	replisync.WriteCreateEntity(&createBody, 1, components)
	rm.ApplyEntityActions(section(t, 0, 1, createBody.Bytes()))

	var assignBody bytes.Buffer
	replisync.WriteAssignPawnEntity(&assignBody, 1)
	events, err := rm.ApplyEntityActions(section(t, 0, 1, assignBody.Bytes()))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(events) != 1 || events[0].Kind != client.EventOwnEntity {
		t.Fatalf("events = %+v, want EventOwnEntity", events)
	}
	if !rm.IsPawn(1) {
		t.Fatal("entity 1 should be a pawn")
	}

	pawnPos, ok := client.GetPawnComponentByType[*demoreplica.Position](rm, 1)
	if !ok {
		t.Fatal("expected a pawn-store Position")
	}
	authPos, _ := client.GetComponentByType[*demoreplica.Position](rm, 1)
	if pawnPos == authPos {
		t.Fatal("pawn store must hold a clone, not the authoritative instance")
	}
	if pawnPos.X != 5 || pawnPos.Y != 5 {
		t.Fatalf("pawn Position = (%d,%d), want (5,5)", pawnPos.X, pawnPos.Y)
	}

	var unassignBody bytes.Buffer
	replisync.WriteUnassignPawnEntity(&unassignBody, 1)
	events, err = rm.ApplyEntityActions(section(t, 0, 1, unassignBody.Bytes()))
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if len(events) != 1 || events[0].Kind != client.EventDisownEntity {
		t.Fatalf("events = %+v, want EventDisownEntity", events)
	}
	if rm.IsPawn(1) {
		t.Fatal("entity 1 should no longer be a pawn")
	}
	if _, ok := client.GetPawnComponentByType[*demoreplica.Position](rm, 1); ok {
		t.Fatal("pawn store entry should be gone after unassign")
	}
}

func TestUpdateComponentMergesIntoAuthoritativeNotPawn(t *testing.T) {
	rm := newTestManager()

	var createBody bytes.Buffer
	components := []replisync.ComponentInit{
		{Kind: demoreplica.KindPosition, ComponentKey: 7, Replica: demoreplica.NewPosition(0, 0)},
	}
	replisync.WriteCreateEntity(&createBody, 1, components)
	rm.ApplyEntityActions(section(t, 0, 1, createBody.Bytes()))

	var assignBody bytes.Buffer
	replisync.WriteAssignPawnEntity(&assignBody, 1)
	rm.ApplyEntityActions(section(t, 0, 1, assignBody.Bytes()))

	pawnPos, _ := client.GetPawnComponentByType[*demoreplica.Position](rm, 1)
	pawnPos.SetX(100) // local prediction, must not be clobbered by the merge below

	mask := replisync.NewDiffMask(2)
	mask.SetBit(0)
	source := demoreplica.NewPosition(42, 0)

	var updateBody bytes.Buffer
	replisync.WriteUpdateComponent(&updateBody, 7, mask, source)
	if _, err := rm.ApplyEntityActions(section(t, 5, 1, updateBody.Bytes())); err != nil {
		t.Fatalf("update: %v", err)
	}

	authPos, _ := client.GetComponentByType[*demoreplica.Position](rm, 1)
	if authPos.X != 42 {
		t.Fatalf("authoritative X = %d, want 42", authPos.X)
	}
	if pawnPos.X != 100 {
		t.Fatalf("pawn X = %d, want untouched 100", pawnPos.X)
	}
}
