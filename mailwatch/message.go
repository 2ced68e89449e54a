package mailwatch

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

const maxBodyBytes = 1 << 20

// Message is one mailbox entry as seen by the watcher.
type Message struct {
	UID       uint32
	MessageID string
	Seen      bool
	Text      string
	// Malformed is set when the body could not be parsed at all.
	Malformed bool
}

// ParseBody reads an RFC 5322 message and returns its Message-ID header and
// readable text: the first text/plain part, else the first text/html part
// reduced to text.
func ParseBody(r io.Reader) (messageID string, text string, err error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", "", fmt.Errorf("read mail: %w", err)
	}
	if mr == nil {
		return "", "", fmt.Errorf("read mail: empty message")
	}
	defer mr.Close()

	if id, idErr := mr.Header.MessageID(); idErr == nil && id != "" {
		messageID = "<" + id + ">"
	}

	var plain, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return messageID, firstNonEmpty(plain, htmlText(htmlBody)), fmt.Errorf("read mail part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch strings.ToLower(ct) {
		case "text/plain", "":
			if plain == "" {
				plain = readLimited(p.Body)
			}
		case "text/html":
			if htmlBody == "" {
				htmlBody = readLimited(p.Body)
			}
		}
	}
	return messageID, firstNonEmpty(plain, htmlText(htmlBody)), nil
}

func readLimited(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	return string(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// htmlText collapses the visible text nodes of an HTML document.
func htmlText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
