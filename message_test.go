package replisync

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeMessage(t *testing.T) {
	m := Message{Type: "chat", Payload: []byte("hello")}
	encoded := EncodeMessage(m)

	decoded, n, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if decoded.Type != m.Type || !bytes.Equal(decoded.Payload, m.Payload) {
		t.Fatalf("decoded = %+v, want %+v", decoded, m)
	}
}

func TestEncodeDecodeMessageEmptyPayload(t *testing.T) {
	m := Message{Type: "ping"}
	encoded := EncodeMessage(m)
	decoded, _, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded.Type != "ping" || len(decoded.Payload) != 0 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEncodeDecodeMessageBatch(t *testing.T) {
	msgs := []Message{
		{Type: "a", Payload: []byte{1, 2, 3}},
		{Type: "bb", Payload: nil},
		{Type: "ccc", Payload: []byte{9}},
	}
	encoded := EncodeMessageBatch(msgs)
	decoded, err := DecodeMessageBatch(encoded)
	if err != nil {
		t.Fatalf("DecodeMessageBatch: %v", err)
	}
	if len(decoded) != len(msgs) {
		t.Fatalf("decoded %d messages, want %d", len(decoded), len(msgs))
	}
	for i := range msgs {
		if decoded[i].Type != msgs[i].Type || !bytes.Equal(decoded[i].Payload, msgs[i].Payload) {
			t.Fatalf("message %d = %+v, want %+v", i, decoded[i], msgs[i])
		}
	}
}

func TestDecodeMessageBatchEmpty(t *testing.T) {
	decoded, err := DecodeMessageBatch(nil)
	if err != nil {
		t.Fatalf("DecodeMessageBatch(nil): %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil result for empty input, got %v", decoded)
	}
}

func TestDecodeMessageTruncated(t *testing.T) {
	m := Message{Type: "chat", Payload: []byte("hello")}
	encoded := EncodeMessage(m)
	_, _, err := DecodeMessage(encoded[:len(encoded)-2])
	if err == nil {
		t.Fatal("expected error decoding truncated message")
	}
}

func TestMessagesSectionRoundTrip(t *testing.T) {
	msgs := []Message{
		{Type: "chat", Payload: []byte("hi")},
		{Type: "ping"},
	}
	var buf bytes.Buffer
	if err := WriteMessagesSection(&buf, 7, msgs); err != nil {
		t.Fatalf("WriteMessagesSection: %v", err)
	}

	tick, decoded, err := ReadMessagesSection(&buf)
	if err != nil {
		t.Fatalf("ReadMessagesSection: %v", err)
	}
	if tick != 7 {
		t.Fatalf("tick = %d, want 7", tick)
	}
	if len(decoded) != len(msgs) {
		t.Fatalf("decoded %d messages, want %d", len(decoded), len(msgs))
	}
	for i := range msgs {
		if decoded[i].Type != msgs[i].Type || !bytes.Equal(decoded[i].Payload, msgs[i].Payload) {
			t.Fatalf("message %d = %+v, want %+v", i, decoded[i], msgs[i])
		}
	}
}

func TestMessagesSectionEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessagesSection(&buf, 0, nil); err != nil {
		t.Fatalf("WriteMessagesSection: %v", err)
	}
	tick, decoded, err := ReadMessagesSection(&buf)
	if err != nil {
		t.Fatalf("ReadMessagesSection: %v", err)
	}
	if tick != 0 || len(decoded) != 0 {
		t.Fatalf("tick=%d decoded=%v, want (0, empty)", tick, decoded)
	}
}

func TestVarUintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range values {
		buf := make([]byte, varUintSize(v))
		n := putVarUint(buf, v)
		if n != len(buf) {
			t.Fatalf("putVarUint wrote %d bytes, expected %d", n, len(buf))
		}
		got, consumed := readVarUint(buf)
		if got != v || consumed != len(buf) {
			t.Fatalf("readVarUint(%v) = %d, %d; want %d, %d", buf, got, consumed, v, len(buf))
		}
	}
}
