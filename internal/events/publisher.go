// Package events publishes ledger activity to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quailyquaily/chipdesk/ledger"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream           = "chipdesk.ledger"
	TypeTransactionRecorded = "transaction.recorded"
)

// defaultMaxLen caps the stream length; trimming is approximate.
const defaultMaxLen int64 = 10000

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type TransactionRecorded struct {
	SourceMessageID string    `json:"source_message_id"`
	AccountAlias    string    `json:"account_alias"`
	Amount          string    `json:"amount"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream, maxLen: defaultMaxLen, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	eventJSON, err := encode(eventType, p.now(), data)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event": eventJSON,
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// TransactionRecorded announces a newly recorded credit.
func (p *Publisher) TransactionRecorded(ctx context.Context, tx ledger.Transaction) error {
	return p.Publish(ctx, TypeTransactionRecorded, transactionPayload(tx))
}

func transactionPayload(tx ledger.Transaction) TransactionRecorded {
	return TransactionRecorded{
		SourceMessageID: tx.SourceMessageID,
		AccountAlias:    tx.AccountAlias,
		Amount:          tx.Amount.StringFixed(2),
		RecordedAt:      tx.RecordedAt.UTC(),
	}
}

func encode(eventType string, at time.Time, data any) ([]byte, error) {
	b, err := json.Marshal(Event{Type: eventType, Timestamp: at.UTC(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}
