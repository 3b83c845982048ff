package replisync

import "time"

// DiffRecord captures one tick's worth of encoded entity-action bytes
// for later offline analysis. Purely additive: nothing in the core
// reads these back to drive replication (see spec §3's persisted-state
// note and the Non-goals around historical rewind).
type DiffRecord struct {
	Seq       uint64
	Tick      uint16
	Timestamp time.Time
	Data      []byte
}

// DiffRecorder buffers DiffRecords until drained. Attach it to a
// server connection's writer (outside the hot path) to get a
// debuggable trace of exactly what was sent and when.
type DiffRecorder struct {
	records []DiffRecord
}

// NewDiffRecorder creates an empty recorder.
func NewDiffRecorder() *DiffRecorder {
	return &DiffRecorder{}
}

// Record appends one entry. A nil or empty data slice is ignored: a
// tick with nothing to send is not worth recording.
func (dr *DiffRecorder) Record(seq uint64, tick uint16, data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	dr.records = append(dr.records, DiffRecord{
		Seq:       seq,
		Tick:      tick,
		Timestamp: time.Now(),
		Data:      cp,
	})
}

// Records returns all captured records without clearing the buffer.
func (dr *DiffRecorder) Records() []DiffRecord {
	return dr.records
}

// Drain returns all captured records and clears the buffer.
func (dr *DiffRecorder) Drain() []DiffRecord {
	records := dr.records
	dr.records = nil
	return records
}

// Clear discards all captured records without returning them.
func (dr *DiffRecorder) Clear() {
	dr.records = dr.records[:0]
}
