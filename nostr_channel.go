package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nbd-wtf/go-nostr"
)

// Channel represents a NIP-28 channel (kind 40 creation event).
type Channel struct {
	ID   string
	Name string
}

// Bubbletea message types for NIP-28 channel events.
type channelEventMsg ChatMessage

// channelSubEndedMsg triggers a reconnect.
type channelSubEndedMsg struct{ channelID string }

// channelReconnectMsg is dispatched after a brief pause.
type channelReconnectMsg struct{ channelID string }

// channelSubStartedMsg is returned from Cmds so the model can store
// the channel and cancel func without blocking Init().
type channelSubStartedMsg struct {
	channelID string
	events    <-chan nostr.RelayEvent
	cancel    context.CancelFunc
}

// channelMetaMsg is returned after fetching a kind-40 event to resolve channel metadata.
type channelMetaMsg struct {
	ID   string
	Name string
}

// fetchChannelMetaCmd fetches a kind-40 event by ID to resolve the channel name.
func fetchChannelMetaCmd(pool *nostr.SimplePool, relays []string, eventID string) tea.Cmd {
	return func() tea.Msg {
		log.Printf("fetchChannelMeta: id=%s", eventID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		re := pool.QuerySingle(ctx, relays, nostr.Filter{
			IDs:   []string{eventID},
			Kinds: []int{40},
		})
		if re == nil {
			log.Printf("fetchChannelMeta: not found for %s", eventID)
			return channelMetaMsg{ID: eventID, Name: shortPK(eventID)}
		}

		name := parseChannelMeta(re.Content)
		if name == "" {
			log.Printf("fetchChannelMeta: no name in metadata for %s", eventID)
			return channelMetaMsg{ID: eventID, Name: shortPK(eventID)}
		}

		log.Printf("fetchChannelMeta: resolved %s -> %q", eventID, name)
		return channelMetaMsg{ID: eventID, Name: name}
	}
}

// subscribeChannelCmd opens a channel subscription inside a tea.Cmd so it
// doesn't block Init/Update. The relays replay the newest limit messages
// before streaming live ones.
func subscribeChannelCmd(pool *nostr.SimplePool, relays []string, channelID string, limit int) tea.Cmd {
	return func() tea.Msg {
		log.Printf("subscribeChannelCmd: channelID=%s limit=%d", channelID, limit)
		ctx, cancel := context.WithCancel(context.Background())
		ch := pool.SubscribeMany(ctx, relays, nostr.Filter{
			Kinds: []int{42},
			Tags:  nostr.TagMap{"e": {channelID}},
			Limit: limit,
		})
		return channelSubStartedMsg{channelID: channelID, events: ch, cancel: cancel}
	}
}

// channelReconnectDelayCmd waits briefly before signalling a channel reconnection.
func channelReconnectDelayCmd(channelID string) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(5 * time.Second)
		return channelReconnectMsg{channelID: channelID}
	}
}

// waitForChannelEvent blocks on the subscription channel and returns the next event.
func waitForChannelEvent(events <-chan nostr.RelayEvent, channelID string) tea.Cmd {
	return func() tea.Msg {
		re, ok := <-events
		if !ok {
			return channelSubEndedMsg{channelID: channelID}
		}
		return channelEventMsg(chatMessageFromEvent(re.Event, channelID))
	}
}

// parseChannelMeta extracts a channel name from a kind-40 channel JSON content string.
func parseChannelMeta(content string) string {
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		return ""
	}
	return meta.Name
}
