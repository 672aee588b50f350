// Package sections splits rendered prompt text into chat messages using
// bracketed role markers such as [ system ] and [ end user ].
package sections

import (
	"regexp"
	"strings"
)

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one message of a rendered prompt.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	// Cache marks text from a [ cache ] section, a system message the
	// model provider may cache across calls.
	Cache bool `json:"cache,omitempty" yaml:"cache,omitempty"`
}

var markerRe = regexp.MustCompile(`(?i)^\s*\[\s*(end\s+)?(system|user|assistant|cache)\s*\]\s*$`)

type marker struct {
	role  Role
	cache bool
	end   bool
}

func parseMarker(line string) (marker, bool) {
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return marker{}, false
	}
	name := strings.ToLower(m[2])
	mk := marker{role: Role(name), end: m[1] != ""}
	if name == "cache" {
		mk.role, mk.cache = RoleSystem, true
	}
	return mk, true
}

// Parse scans rendered text line by line. Each marker closes the current
// section; text is trimmed and empty sections are dropped. Text outside any
// section, including after an end marker, belongs to the system role.
// Sections are never merged, so repeated roles keep their authored order.
func Parse(rendered string) []ChatMessage {
	messages := []ChatMessage{}
	current := marker{role: RoleSystem}
	var buf []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if content == "" {
			return
		}
		messages = append(messages, ChatMessage{Role: current.role, Content: content, Cache: current.cache})
	}

	for _, line := range strings.Split(rendered, "\n") {
		mk, ok := parseMarker(strings.TrimSuffix(line, "\r"))
		if !ok {
			buf = append(buf, line)
			continue
		}
		flush()
		if mk.end {
			current = marker{role: RoleSystem}
		} else {
			current = mk
		}
	}
	flush()
	return messages
}

// Roles lists the roles of messages in order.
func Roles(messages []ChatMessage) []Role {
	roles := make([]Role, len(messages))
	for i, m := range messages {
		roles[i] = m.Role
	}
	return roles
}
