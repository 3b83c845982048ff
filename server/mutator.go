package server

// componentMutator is the non-owning handle a ComponentRecord's replica
// is attached to (see replisync.PropertyMutator). It never holds a
// reference back to the replica itself, only to the record that knows
// which connections currently subscribe to it — so attaching it cannot
// create a cycle between the replica and the store.
type componentMutator struct {
	record *ComponentRecord
}

// Mutate ORs propertyIndex into every subscribed connection's dirty
// mask for this component. The writer for each connection reads and
// clears its own mask independently when producing a packet, so one
// connection acking a mutation never affects another's retransmission
// state.
func (m *componentMutator) Mutate(propertyIndex int) {
	for _, mask := range m.record.subscriberMasks() {
		mask.SetBit(propertyIndex)
	}
}
