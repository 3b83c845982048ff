package replisync

// DiffMask is a per-replica bitset of which properties changed since
// the mask was last cleared. Its size is fixed at construction to
// ceil(bits/8) bytes, matching the owning replica's MaskBytes().
type DiffMask struct {
	bits []byte
}

// NewDiffMask allocates a mask wide enough for propertyCount bits.
func NewDiffMask(propertyCount int) *DiffMask {
	return &DiffMask{bits: make([]byte, (propertyCount+7)/8)}
}

// Len returns the mask width in bytes.
func (m *DiffMask) Len() int {
	return len(m.bits)
}

// SetBit marks property i as dirty.
func (m *DiffMask) SetBit(i int) {
	m.bits[i/8] |= 1 << uint(i%8)
}

// ClearBit marks property i as clean.
func (m *DiffMask) ClearBit(i int) {
	m.bits[i/8] &^= 1 << uint(i%8)
}

// IsSet reports whether property i is currently marked dirty.
func (m *DiffMask) IsSet(i int) bool {
	return m.bits[i/8]&(1<<uint(i%8)) != 0
}

// IsClear reports whether no property is marked dirty.
func (m *DiffMask) IsClear() bool {
	for _, b := range m.bits {
		if b != 0 {
			return false
		}
	}
	return true
}

// Clear zeroes every bit.
func (m *DiffMask) Clear() {
	for i := range m.bits {
		m.bits[i] = 0
	}
}

// OrWith merges other's dirty bits into m (self |= other). Associative
// and commutative, so merging masks from independent connections or
// independent unacked packets never loses a bit.
func (m *DiffMask) OrWith(other *DiffMask) {
	for i := range m.bits {
		m.bits[i] |= other.bits[i]
	}
}

// ClearBitsIn clears every bit that is set in other (self &^= other),
// leaving bits that are set only in self intact.
func (m *DiffMask) ClearBitsIn(other *DiffMask) {
	for i := range m.bits {
		m.bits[i] &^= other.bits[i]
	}
}

// CopyFrom overwrites m's bits with other's.
func (m *DiffMask) CopyFrom(other *DiffMask) {
	copy(m.bits, other.bits)
}

// Clone returns an independent copy of the mask.
func (m *DiffMask) Clone() *DiffMask {
	c := &DiffMask{bits: make([]byte, len(m.bits))}
	copy(c.bits, m.bits)
	return c
}

// SetAll marks every addressable property dirty, used for full-state
// sync (a newly scoped-in entity, or a client that needs an initial
// snapshot).
func (m *DiffMask) SetAll() {
	for i := range m.bits {
		m.bits[i] = 0xFF
	}
}

// Bytes returns the raw mask bytes, ready for wire writing. The
// length is never transmitted on its own; the reader already knows it
// from the replica's kind.
func (m *DiffMask) Bytes() []byte {
	return m.bits
}

// ReadDiffMask constructs a mask of the given width from wire bytes.
// The caller must ensure data has at least width bytes.
func ReadDiffMask(data []byte, width int) *DiffMask {
	m := &DiffMask{bits: make([]byte, width)}
	copy(m.bits, data[:width])
	return m
}

// SetIndices returns the indices of every dirty bit in ascending
// order, up to maxIndex (exclusive).
func (m *DiffMask) SetIndices(maxIndex int) []int {
	var out []int
	for i := 0; i < maxIndex; i++ {
		if m.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}
