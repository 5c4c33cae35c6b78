package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nbd-wtf/go-nostr"
)

// ChatMessage represents a message displayed in the TUI.
type ChatMessage struct {
	Author    string
	PubKey    string // full 64-char hex pubkey of the author
	Content   string
	Timestamp nostr.Timestamp
	EventID   string
	ChannelID string // NIP-28 channel this message belongs to
	FromLog   bool   // read back from the local chat log
}

// IsSystem reports whether the message is a local notice rather than an event.
func (c ChatMessage) IsSystem() bool {
	return c.Author == "system"
}

type nostrErrMsg struct{ err error }

func (e nostrErrMsg) Error() string { return e.err.Error() }

// profileResolvedMsg is returned after fetching a kind-0 profile for a pubkey.
type profileResolvedMsg struct {
	PubKey      string
	DisplayName string
}

// chatMessageFromEvent converts a kind-42 event into a ChatMessage.
func chatMessageFromEvent(ev *nostr.Event, channelID string) ChatMessage {
	return ChatMessage{
		Author:    shortPK(ev.PubKey),
		PubKey:    ev.PubKey,
		Content:   ev.Content,
		Timestamp: ev.CreatedAt,
		EventID:   ev.ID,
		ChannelID: channelID,
	}
}

// parseProfileName extracts the preferred display name from kind-0 content.
// Returns "" when the content carries no usable name.
func parseProfileName(content string) string {
	var meta struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		return ""
	}
	if meta.DisplayName != "" {
		return meta.DisplayName
	}
	return meta.Name
}

// fetchProfileCmd fetches a kind-0 event (NIP-01 profile metadata) for a pubkey.
func fetchProfileCmd(pool *nostr.SimplePool, relays []string, pubkey string) tea.Cmd {
	return func() tea.Msg {
		log.Printf("fetchProfile: pubkey=%s", shortPK(pubkey))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		re := pool.QuerySingle(ctx, relays, nostr.Filter{
			Kinds:   []int{0},
			Authors: []string{pubkey},
		})
		if re == nil {
			log.Printf("fetchProfile: not found for %s", shortPK(pubkey))
			return profileResolvedMsg{PubKey: pubkey, DisplayName: shortPK(pubkey)}
		}

		name := parseProfileName(re.Content)
		if name == "" {
			name = shortPK(pubkey)
		}
		log.Printf("fetchProfile: resolved %s -> %q", shortPK(pubkey), name)
		return profileResolvedMsg{PubKey: pubkey, DisplayName: name}
	}
}

// shortPK returns the first 8 characters of a public key for display.
func shortPK(pk string) string {
	if len(pk) > 8 {
		return pk[:8]
	}
	return pk
}
