package mailwatch

import (
	"context"

	"github.com/quailyquaily/chipdesk/accounts"
)

// Mailbox is an open session on one account's inbox.
type Mailbox interface {
	// Unseen lists UIDs of messages without the \Seen flag.
	Unseen(ctx context.Context) ([]uint32, error)
	// Fetch reads one message without marking it seen.
	Fetch(ctx context.Context, uid uint32) (Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a mailbox session for an account.
type Dialer func(ctx context.Context, acct accounts.Account) (Mailbox, error)
