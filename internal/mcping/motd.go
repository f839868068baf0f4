package mcping

import (
	"encoding/json"
	"strings"
)

// chatComponent is the subset of the chat JSON format needed to flatten a
// description into plain text.
type chatComponent struct {
	Text  string            `json:"text"`
	Extra []json.RawMessage `json:"extra"`
}

// MOTD flattens the description into plain text with legacy formatting codes
// (section sign + one character) removed. Unknown shapes yield "".
func (r *Response) MOTD() string {
	if len(r.Description) == 0 {
		return ""
	}
	var sb strings.Builder
	flattenChat(r.Description, &sb, 0)
	return stripFormatting(sb.String())
}

func flattenChat(raw json.RawMessage, sb *strings.Builder, depth int) {
	if depth > 16 {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		sb.WriteString(s)
		return
	}
	var c chatComponent
	if err := json.Unmarshal(raw, &c); err != nil {
		return
	}
	sb.WriteString(c.Text)
	for _, e := range c.Extra {
		flattenChat(e, sb, depth+1)
	}
}

func stripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}
	var sb strings.Builder
	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
