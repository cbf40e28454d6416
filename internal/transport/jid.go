// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package transport

import "strings"

// JID server suffixes.
const (
	ServerUser      = "s.whatsapp.net"
	ServerGroup     = "g.us"
	ServerLID       = "lid"
	ServerBroadcast = "broadcast"
)

// NormalizeJID strips the device/agent part from a JID's user portion, so
// "1234:17@s.whatsapp.net" and "1234@s.whatsapp.net" compare equal.
func NormalizeJID(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user + "@" + server
}

// IsGroupJID reports whether the JID addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+ServerGroup)
}

// IsLID reports whether the JID uses the anonymized lid addressing scheme.
func IsLID(jid string) bool {
	return strings.HasSuffix(jid, "@"+ServerLID)
}

// SameUser reports whether two JIDs refer to the same user after device
// normalization.
func SameUser(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeJID(a) == NormalizeJID(b)
}

// ParseJIDs extracts user JIDs from free text: existing JIDs are normalized
// and kept, and phone-number-like digit runs (5+ digits) are promoted to
// user JIDs.
func ParseJIDs(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(jid string) {
		jid = NormalizeJID(jid)
		if _, dup := seen[jid]; dup {
			return
		}
		seen[jid] = struct{}{}
		out = append(out, jid)
	}

	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, ",;:()[]<>")
		if u, srv, ok := strings.Cut(tok, "@"); ok {
			if u != "" && srv != "" {
				add(tok)
			}
			continue
		}
		digits := strings.Map(keepDigit, tok)
		stripped := strings.Map(keepPhoneRune, tok)
		if len(digits) >= 5 && digits == stripped {
			add(digits + "@" + ServerUser)
		}
	}
	return out
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// keepPhoneRune drops phone punctuation but keeps everything else, so a
// token with letters never parses as a number.
func keepPhoneRune(r rune) rune {
	switch r {
	case '+', '-', '(', ')', '.', ' ':
		return -1
	}
	return r
}
