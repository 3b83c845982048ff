package replisync

import "testing"

func TestDiffRecorderRecordAndDrain(t *testing.T) {
	dr := NewDiffRecorder()
	dr.Record(1, 10, []byte{1, 2, 3})
	dr.Record(2, 11, nil) // ignored: empty payload

	records := dr.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Tick != 10 {
		t.Fatalf("Tick = %d, want 10", records[0].Tick)
	}

	drained := dr.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained record, got %d", len(drained))
	}
	if len(dr.Records()) != 0 {
		t.Fatal("Drain should clear the buffer")
	}
}

func TestDiffRecorderRecordCopiesData(t *testing.T) {
	dr := NewDiffRecorder()
	data := []byte{1, 2, 3}
	dr.Record(1, 1, data)
	data[0] = 99

	records := dr.Records()
	if records[0].Data[0] != 1 {
		t.Fatal("Record should defensively copy its data argument")
	}
}

func TestDiffRecorderClear(t *testing.T) {
	dr := NewDiffRecorder()
	dr.Record(1, 1, []byte{1})
	dr.Clear()
	if len(dr.Records()) != 0 {
		t.Fatal("Clear should empty the buffer")
	}
}
