package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/quailyquaily/chipdesk/ledger"
	"github.com/shopspring/decimal"
)

func TestEncodeTransactionRecorded(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := ledger.Transaction{
		Amount:          decimal.RequireFromString("7000"),
		SourceMessageID: "<m1@bank.example>",
		AccountAlias:    "main",
		RecordedAt:      at,
	}
	raw, err := encode(TypeTransactionRecorded, at, transactionPayload(tx))
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	var got struct {
		Type string              `json:"type"`
		Data TransactionRecorded `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeTransactionRecorded {
		t.Fatalf("type = %q", got.Type)
	}
	if got.Data.Amount != "7000.00" || got.Data.SourceMessageID != "<m1@bank.example>" || got.Data.AccountAlias != "main" {
		t.Fatalf("data = %+v", got.Data)
	}
}

func TestNewPublisherDefaultsStream(t *testing.T) {
	if p := NewPublisher(nil, ""); p.stream != DefaultStream {
		t.Fatalf("stream = %q, want %q", p.stream, DefaultStream)
	}
}
