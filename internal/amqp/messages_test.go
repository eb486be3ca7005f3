package amqp

import (
	"testing"
	"time"
)

func TestLedgerChangedMessageRoundTrip(t *testing.T) {
	msg := NewLedgerChangedMessage("update", 42)

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := LedgerChangedMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Op != "update" || decoded.TransferID != 42 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if time.Since(decoded.Timestamp) > time.Minute {
		t.Fatalf("timestamp not recent: %v", decoded.Timestamp)
	}
}

func TestLedgerChangedMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := LedgerChangedMessageFromJSON([]byte("{broken")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
