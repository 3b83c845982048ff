package server

import (
	"testing"

	"github.com/replisync/replisync"
)

func TestRoomSetMembershipAndSharedRooms(t *testing.T) {
	rs := NewRoomSet()
	r := rs.Room("lobby")
	r.AddUser(UserKey(1))
	r.AddEntity(replisync.EntityID(100))

	shared := rs.RoomsSharedBy(UserKey(1), replisync.EntityID(100))
	if len(shared) != 1 || shared[0] != r {
		t.Fatalf("RoomsSharedBy = %v", shared)
	}

	r.RemoveUser(UserKey(1))
	shared = rs.RoomsSharedBy(UserKey(1), replisync.EntityID(100))
	if len(shared) != 0 {
		t.Fatal("removed user should no longer share the room")
	}
}

func TestScopeEngineScopeChurn(t *testing.T) {
	rs := NewRoomSet()
	r := rs.Room("lobby")
	entity := replisync.EntityID(1)
	r.AddEntity(entity)

	se := NewScopeEngine()
	r.AddUser(UserKey(1))

	inScope, outScope := se.Resolve(rs, UserKey(1))
	if len(inScope) != 1 || inScope[0] != entity {
		t.Fatalf("expected entity to enter scope on join, got inScope=%v", inScope)
	}
	if len(outScope) != 0 {
		t.Fatalf("expected no out-of-scope entities on first resolution, got %v", outScope)
	}

	// Resolving again with no membership change should report no churn.
	inScope, outScope = se.Resolve(rs, UserKey(1))
	if len(inScope) != 0 || len(outScope) != 0 {
		t.Fatalf("expected no scope churn on unchanged membership, got in=%v out=%v", inScope, outScope)
	}

	r.RemoveUser(UserKey(1))
	inScope, outScope = se.Resolve(rs, UserKey(1))
	if len(inScope) != 0 || len(outScope) != 1 || outScope[0] != entity {
		t.Fatalf("expected entity to leave scope once, got in=%v out=%v", inScope, outScope)
	}
}

func TestScopeEnginePredicateGating(t *testing.T) {
	rs := NewRoomSet()
	r := rs.Room("lobby")
	r.AddUser(UserKey(1))
	visible := replisync.EntityID(1)
	hidden := replisync.EntityID(2)
	r.AddEntity(visible)
	r.AddEntity(hidden)

	se := NewScopeEngine()
	se.SetPredicate("lobby", func(u UserKey, e replisync.EntityID) bool {
		return e == visible
	})

	inScope, _ := se.Resolve(rs, UserKey(1))
	if len(inScope) != 1 || inScope[0] != visible {
		t.Fatalf("predicate should filter out hidden entity, got %v", inScope)
	}
}
