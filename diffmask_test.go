package replisync

import "testing"

func TestDiffMaskSetClear(t *testing.T) {
	m := NewDiffMask(10) // 2 bytes
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if !m.IsClear() {
		t.Fatal("fresh mask should be clear")
	}

	m.SetBit(0)
	m.SetBit(9)
	if !m.IsSet(0) || !m.IsSet(9) {
		t.Fatal("bits 0 and 9 should be set")
	}
	if m.IsSet(1) {
		t.Fatal("bit 1 should not be set")
	}
	if m.IsClear() {
		t.Fatal("mask should not be clear")
	}

	m.ClearBit(0)
	if m.IsSet(0) {
		t.Fatal("bit 0 should be clear after ClearBit")
	}

	m.Clear()
	if !m.IsClear() {
		t.Fatal("mask should be clear after Clear()")
	}
}

func TestDiffMaskOrWith(t *testing.T) {
	a := NewDiffMask(8)
	b := NewDiffMask(8)
	a.SetBit(1)
	b.SetBit(2)
	a.OrWith(b)

	if !a.IsSet(1) || !a.IsSet(2) {
		t.Fatal("OrWith should merge both bits into a")
	}
}

func TestDiffMaskClearBitsIn(t *testing.T) {
	a := NewDiffMask(8)
	b := NewDiffMask(8)
	a.SetBit(1)
	a.SetBit(2)
	b.SetBit(1)
	a.ClearBitsIn(b)

	if a.IsSet(1) {
		t.Fatal("bit 1 should have been cleared")
	}
	if !a.IsSet(2) {
		t.Fatal("bit 2 should survive")
	}
}

func TestDiffMaskCopyAndClone(t *testing.T) {
	a := NewDiffMask(8)
	a.SetBit(3)

	b := NewDiffMask(8)
	b.CopyFrom(a)
	if !b.IsSet(3) {
		t.Fatal("CopyFrom should replicate bits")
	}

	c := a.Clone()
	a.ClearBit(3)
	if !c.IsSet(3) {
		t.Fatal("Clone should be independent of the original")
	}
}

func TestDiffMaskSetAll(t *testing.T) {
	m := NewDiffMask(10)
	m.SetAll()
	for i := 0; i < 10; i++ {
		if !m.IsSet(i) {
			t.Fatalf("bit %d should be set after SetAll", i)
		}
	}
}

func TestDiffMaskReadDiffMask(t *testing.T) {
	data := []byte{0b00000101, 0xFF, 0xFF}
	m := ReadDiffMask(data, 2)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if !m.IsSet(0) || m.IsSet(1) || !m.IsSet(2) {
		t.Fatal("unexpected bits decoded from wire data")
	}
}

func TestDiffMaskSetIndices(t *testing.T) {
	m := NewDiffMask(16)
	m.SetBit(0)
	m.SetBit(5)
	m.SetBit(15)

	got := m.SetIndices(16)
	want := []int{0, 5, 15}
	if len(got) != len(want) {
		t.Fatalf("SetIndices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SetIndices = %v, want %v", got, want)
		}
	}
}
