package mailwatch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/emersion/go-imap"
)

func TestParseBodyPlain(t *testing.T) {
	raw := "Message-ID: <abc123@bank.example>\r\n" +
		"From: avisos@bank.example\r\n" +
		"Subject: Transferencia recibida\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Te acreditaron. Fueron acreditados $ 7.000 en tu cuenta.\r\n"
	id, text, err := ParseBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if id != "<abc123@bank.example>" {
		t.Fatalf("message id = %q", id)
	}
	if !strings.Contains(text, "acreditados $ 7.000") {
		t.Fatalf("text = %q", text)
	}
}

func TestParseBodyFallsBackToHTML(t *testing.T) {
	raw := "Message-ID: <html1@bank.example>\r\n" +
		"Content-Type: multipart/alternative; boundary=XX\r\n" +
		"\r\n" +
		"--XX\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><style>p{color:red}</style><body><p>Fueron <b>acreditados</b> $ 1.000,50</p></body></html>\r\n" +
		"--XX--\r\n"
	_, text, err := ParseBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if strings.Contains(text, "color") {
		t.Fatalf("style content leaked into text: %q", text)
	}
	amount, ok := ExtractAmount(text)
	if !ok || amount.StringFixed(2) != "1000.50" {
		t.Fatalf("ExtractAmount(%q) = %s, %v", text, amount, ok)
	}
}

func TestParseBodyWithoutMessageID(t *testing.T) {
	raw := "Content-Type: text/plain\r\n\r\nhola\r\n"
	id, _, err := ParseBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if id != "" {
		t.Fatalf("message id = %q, want empty", id)
	}
}

func TestMessageFromFetchToleratesTruncatedMultipart(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=XX\r\n" +
		"\r\n" +
		"no parts follow\r\n"
	section := &imap.BodySectionName{Peek: true}
	got := &imap.Message{
		Envelope: &imap.Envelope{MessageId: "<broken@bank.example>"},
		Body:     map[*imap.BodySectionName]imap.Literal{section: bytes.NewBufferString(raw)},
	}
	msg := messageFromFetch(4, got, section)
	if msg.UID != 4 || msg.MessageID != "<broken@bank.example>" {
		t.Fatalf("messageFromFetch() = %+v", msg)
	}
	if msg.Text != "" {
		t.Fatalf("text = %q, want empty", msg.Text)
	}
}

func TestMessageFromFetchKeepsSeenFlagAndText(t *testing.T) {
	raw := "Message-ID: <ok@bank.example>\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"acreditados $ 50\r\n"
	section := &imap.BodySectionName{Peek: true}
	got := &imap.Message{
		Flags: []string{imap.SeenFlag},
		Body:  map[*imap.BodySectionName]imap.Literal{section: bytes.NewBufferString(raw)},
	}
	msg := messageFromFetch(5, got, section)
	if !msg.Seen || msg.Malformed {
		t.Fatalf("messageFromFetch() = %+v", msg)
	}
	if msg.MessageID != "<ok@bank.example>" || !strings.Contains(msg.Text, "acreditados $ 50") {
		t.Fatalf("messageFromFetch() = %+v", msg)
	}
}
