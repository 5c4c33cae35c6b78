package main

import (
	"context"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/nbd-wtf/go-nostr"
)

const (
	// reactionsInterval is how often reactions on loaded messages are polled.
	reactionsInterval = 30 * time.Second
	// reactionsBatch caps the event ids in one kind-7 filter.
	reactionsBatch = 100
	maxEmojiWidth  = 12
)

// Reaction is a NIP-25 kind-7 reaction to a channel message.
type Reaction struct {
	ID      string // the reaction event
	Target  string // the message reacted to
	PubKey  string
	Content string
}

// reactionsFetchedMsg carries reactions for one channel's messages.
type reactionsFetchedMsg struct {
	channelID string
	reactions []Reaction
}

// reactionsTickMsg asks the model to poll reactions.
type reactionsTickMsg struct{}

func reactionsTickCmd() tea.Cmd {
	return tea.Tick(reactionsInterval, func(time.Time) tea.Msg { return reactionsTickMsg{} })
}

// reactionFromEvent converts a kind-7 event. The last "e" tag names the
// reacted-to event.
func reactionFromEvent(ev *nostr.Event) (Reaction, bool) {
	if ev == nil || ev.Kind != 7 {
		return Reaction{}, false
	}
	var target string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			target = tag[1]
		}
	}
	if target == "" {
		return Reaction{}, false
	}
	return Reaction{ID: ev.ID, Target: target, PubKey: ev.PubKey, Content: ev.Content}, true
}

// reactionEmoji maps reaction content to what is shown: "+" is a like and
// "-" a dislike, anything else is shown as sent.
func reactionEmoji(content string) string {
	switch c := strings.TrimSpace(content); c {
	case "", "+":
		return "👍"
	case "-":
		return "👎"
	default:
		// Entries are separated by two spaces.
		c = strings.Join(strings.Fields(c), " ")
		return runewidth.Truncate(c, maxEmojiWidth, "…")
	}
}

// fetchReactionsCmd fetches the kind-7 reactions to eventIDs.
func fetchReactionsCmd(pool *nostr.SimplePool, relays []string, channelID string, eventIDs []string) tea.Cmd {
	return func() tea.Msg {
		log.Printf("fetchReactions: channel=%s events=%d", shortPK(channelID), len(eventIDs))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var out []Reaction
		for start := 0; start < len(eventIDs); start += reactionsBatch {
			ids := eventIDs[start:min(start+reactionsBatch, len(eventIDs))]
			for re := range pool.FetchMany(ctx, relays, nostr.Filter{
				Kinds: []int{7},
				Tags:  nostr.TagMap{"e": ids},
			}) {
				if r, ok := reactionFromEvent(re.Event); ok {
					out = append(out, r)
				}
			}
		}
		log.Printf("fetchReactions: channel=%s got=%d", shortPK(channelID), len(out))
		return reactionsFetchedMsg{channelID: channelID, reactions: out}
	}
}
