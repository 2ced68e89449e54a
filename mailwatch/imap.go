package mailwatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/quailyquaily/chipdesk/accounts"
)

type IMAPConfig struct {
	Addr    string
	Folder  string
	Timeout time.Duration
	// Insecure skips TLS verification; only for local test servers.
	Insecure bool
}

func DefaultIMAPConfig() IMAPConfig {
	return IMAPConfig{
		Addr:    "imap.gmail.com:993",
		Folder:  "INBOX",
		Timeout: 30 * time.Second,
	}
}

// IMAPDialer logs in over implicit TLS and selects the configured folder.
func IMAPDialer(cfg IMAPConfig) Dialer {
	if strings.TrimSpace(cfg.Folder) == "" {
		cfg.Folder = "INBOX"
	}
	return func(ctx context.Context, acct accounts.Account) (Mailbox, error) {
		var tlsCfg *tls.Config
		if cfg.Insecure {
			tlsCfg = &tls.Config{InsecureSkipVerify: true}
		}
		c, err := client.DialTLS(cfg.Addr, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("imap dial %s: %w", cfg.Addr, err)
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if err := c.Login(acct.MailAddress, acct.MailSecret); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("imap login %s: %w", acct.MailAddress, err)
		}
		if _, err := c.Select(cfg.Folder, false); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("imap select %s: %w", cfg.Folder, err)
		}
		return &imapMailbox{c: c}, nil
	}
}

type imapMailbox struct {
	c *client.Client
}

func (m *imapMailbox) Unseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return m.c.UidSearch(criteria)
}

func (m *imapMailbox) Fetch(ctx context.Context, uid uint32) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- m.c.UidFetch(seq, items, ch) }()

	var got *imap.Message
	for msg := range ch {
		if got == nil {
			got = msg
		}
	}
	if err := <-done; err != nil {
		return Message{}, fmt.Errorf("imap fetch uid %d: %w", uid, err)
	}
	if got == nil {
		return Message{}, fmt.Errorf("imap fetch uid %d: not found", uid)
	}

	return messageFromFetch(uid, got, section), nil
}

// messageFromFetch converts a fetched entry. A body that cannot be parsed
// yields a Malformed message rather than an error so the batch can move on.
func messageFromFetch(uid uint32, got *imap.Message, section *imap.BodySectionName) Message {
	out := Message{UID: uid}
	for _, f := range got.Flags {
		if f == imap.SeenFlag {
			out.Seen = true
		}
	}
	if got.Envelope != nil {
		out.MessageID = strings.TrimSpace(got.Envelope.MessageId)
	}
	body := got.GetBody(section)
	if body == nil {
		return out
	}
	headerID, text, err := ParseBody(body)
	if out.MessageID == "" {
		out.MessageID = headerID
	}
	if err != nil && text == "" {
		out.Malformed = true
		return out
	}
	out.Text = text
	return out
}

func (m *imapMailbox) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return m.c.UidStore(seq, item, []interface{}{imap.SeenFlag}, nil)
}

func (m *imapMailbox) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.c.Noop()
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
