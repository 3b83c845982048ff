package demoreplica

import "testing"

func TestApplyAdvancesPosition(t *testing.T) {
	pos := NewPosition(0, 0)
	Apply(pos, NewMove(2, -1))
	if pos.X != 2 || pos.Y != -1 {
		t.Fatalf("after one Apply: %+v", pos)
	}
	Apply(pos, NewMove(2, -1))
	if pos.X != 4 || pos.Y != -2 {
		t.Fatalf("after two Applies: %+v", pos)
	}
}

func TestMoveCloneIndependence(t *testing.T) {
	mv := NewMove(1, 1)
	clone := mv.Clone().(*Move)
	clone.SetDX(5)
	if mv.DX == 5 {
		t.Fatal("cloning a Move should not share state")
	}
}
