// Package logger provides log output helpers, including a secret-masking
// writer and a size-rotated log file.
package logger

import (
	"io"
	"regexp"
)

type rule struct {
	re   *regexp.Regexp
	with []byte
}

// rules are applied in order; the full token shape goes first so that a
// "Bot <token>" header keeps the more specific marker.
var rules = []rule{
	// Discord bot token: base64 user id, timestamp and HMAC joined by dots.
	{regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,27}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,40}`), []byte("[REDACTED-BOT-TOKEN]")},
	{regexp.MustCompile(`\bBot\s+[A-Za-z0-9_-]{20,}\.[A-Za-z0-9._-]+`), []byte("Bot [REDACTED]")},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), []byte("bearer [REDACTED]")},
}

// Redact returns p with every credential-shaped substring masked. p itself is
// not modified.
func Redact(p []byte) []byte {
	out := p
	for _, r := range rules {
		out = r.re.ReplaceAll(out, r.with)
	}
	return out
}

// RedactWriter masks Discord bot tokens and bearer tokens before forwarding
// each write. It reports len(p) as written so that zerolog does not treat a
// shortened line as a short write.
type RedactWriter struct{ w io.Writer }

func NewRedactWriter(w io.Writer) *RedactWriter { return &RedactWriter{w: w} }

func (r *RedactWriter) Write(p []byte) (int, error) {
	if _, err := r.w.Write(Redact(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
