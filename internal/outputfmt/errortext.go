// Package outputfmt cleans error text before it is shown in chat, where
// store DSNs, console URLs and mailbox credentials must not leak.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[redacted]"

var (
	urlInTextRE   = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^\s"'<>]+`)
	secretPairRE  = regexp.MustCompile(`(?i)\b(password|passwd|pass|secret|token|api_?key)=([^\s&]+)`)
	sensitiveKeys = []string{"password", "passwd", "pass", "secret", "token", "apikey", "key", "auth"}
)

// ErrorText returns err's message with hosts, credentials and secret values
// removed. A nil error yields "".
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	out := urlInTextRE.ReplaceAllStringFunc(raw, sanitizeURL)
	return secretPairRE.ReplaceAllString(out, "$1="+redacted)
}

// sanitizeURL keeps the scheme and path of a URL and drops its user info and
// host.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	out := u.Scheme + "://" + redacted + u.EscapedPath()
	if q := u.Query(); len(q) > 0 {
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, redacted)
			}
		}
		out += "?" + q.Encode()
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(key)))
	for _, s := range sensitiveKeys {
		if k == s || (len(s) > 4 && strings.Contains(k, s)) {
			return true
		}
	}
	return false
}
