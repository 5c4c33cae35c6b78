package main

import (
	"cmp"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
)

// fetchMoreWindow is how close, in sections, a displayed section must be to
// the oldest loaded one before older history is requested.
const fetchMoreWindow = 5

// MessageList is the data model behind one channel's message list. It keeps
// messages oldest first and exposes them as sections ordered newest first.
type MessageList struct {
	channelID string
	msgs      []ChatMessage
	seen      map[string]bool
	sections  []Section

	// reactions maps a target event id to emoji to the reacting pubkeys.
	reactions    map[string]map[string]map[string]bool
	reactionSeen map[string]bool

	fetching  bool
	exhausted bool
	// floor moves the next fetch boundary past a second whose events were
	// all duplicates.
	floor nostr.Timestamp

	// OnDataChanged is called with the new sections whenever they are rebuilt.
	OnDataChanged func([]Section)
}

func newMessageList(channelID string) *MessageList {
	return &MessageList{
		channelID:    channelID,
		seen:         make(map[string]bool),
		reactions:    make(map[string]map[string]map[string]bool),
		reactionSeen: make(map[string]bool),
	}
}

// NumberOfSections returns the number of sections, one per message.
func (l *MessageList) NumberOfSections() int {
	return len(l.sections)
}

// Sections returns the current sections, newest first.
func (l *MessageList) Sections() []Section {
	return l.sections
}

// Item returns the item at p, or false when p is out of range.
func (l *MessageList) Item(p Position) (Item, bool) {
	if p.Section < 0 || p.Section >= len(l.sections) {
		return Item{}, false
	}
	items := l.sections[p.Section].Items
	if p.Item < 0 || p.Item >= len(items) {
		return Item{}, false
	}
	return items[p.Item], true
}

// OldestDate returns the timestamp of the oldest loaded event. With nothing
// loaded it returns the current time so the first fetch pages from now.
func (l *MessageList) OldestDate() nostr.Timestamp {
	for _, m := range l.msgs {
		if !m.IsSystem() {
			return m.Timestamp
		}
	}
	return nostr.Now()
}

// Messages returns the loaded messages, oldest first.
func (l *MessageList) Messages() []ChatMessage {
	return l.msgs
}

// Has reports whether the event is already in the list.
func (l *MessageList) Has(eventID string) bool {
	return l.seen[eventID]
}

// Insert merges msgs into the list, dropping events already present.
// It returns the number of messages added.
func (l *MessageList) Insert(msgs ...ChatMessage) int {
	added := 0
	for _, m := range msgs {
		if m.EventID == "" || l.seen[m.EventID] {
			continue
		}
		l.seen[m.EventID] = true
		l.msgs = insertMessage(l.msgs, m)
		added++
	}
	if added > 0 {
		l.rebuild()
	}
	return added
}

// AddReactions records reactions to messages in the list. Each pubkey
// counts once per emoji. It returns the identities of the reaction rows
// whose counts changed; the sections are rebuilt only when that is not
// empty.
func (l *MessageList) AddReactions(rs ...Reaction) []ItemID {
	var changed []ItemID
	for _, r := range rs {
		if r.ID == "" || r.Target == "" || l.reactionSeen[r.ID] {
			continue
		}
		l.reactionSeen[r.ID] = true
		byEmoji := l.reactions[r.Target]
		if byEmoji == nil {
			byEmoji = make(map[string]map[string]bool)
			l.reactions[r.Target] = byEmoji
		}
		emoji := reactionEmoji(r.Content)
		if byEmoji[emoji] == nil {
			byEmoji[emoji] = make(map[string]bool)
		}
		if byEmoji[emoji][r.PubKey] {
			continue
		}
		byEmoji[emoji][r.PubKey] = true
		id := ItemID("reactions:" + r.Target)
		if l.seen[r.Target] && !slices.Contains(changed, id) {
			changed = append(changed, id)
		}
	}
	if len(changed) > 0 {
		l.rebuild()
	}
	return changed
}

// ReactionSummary renders the counts for eventID, most frequent first, or
// "" when it has none.
func (l *MessageList) ReactionSummary(eventID string) string {
	type count struct {
		emoji string
		n     int
	}
	var counts []count
	for emoji, who := range l.reactions[eventID] {
		if len(who) > 0 {
			counts = append(counts, count{emoji, len(who)})
		}
	}
	slices.SortFunc(counts, func(a, b count) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return strings.Compare(a.emoji, b.emoji)
	})
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.emoji, c.n)
	}
	return strings.Join(parts, "  ")
}

// AddNotice appends a local system notice at the current time.
func (l *MessageList) AddNotice(text string) {
	l.Insert(ChatMessage{
		Author:    "system",
		Content:   text,
		Timestamp: nostr.Timestamp(time.Now().Unix()),
		EventID:   uuid.NewString(),
		ChannelID: l.channelID,
	})
}

// ShouldFetchMore reports whether displaying section should trigger a fetch
// of older history.
func (l *MessageList) ShouldFetchMore(section int) bool {
	if l.fetching || l.exhausted {
		return false
	}
	return l.NumberOfSections()-section <= fetchMoreWindow
}

// BeginFetch marks a history fetch in flight and returns the boundary to
// fetch before. It returns false when a fetch is already running or the
// history is exhausted.
func (l *MessageList) BeginFetch() (nostr.Timestamp, bool) {
	if l.fetching || l.exhausted {
		return 0, false
	}
	l.fetching = true
	before := l.OldestDate()
	if l.floor != 0 && l.floor < before {
		before = l.floor
	}
	return before, true
}

// EndFetch records the result of a history fetch of up to limit messages.
// A short page that adds nothing marks the history as exhausted; a full page
// of duplicates moves the next boundary past their second instead.
func (l *MessageList) EndFetch(msgs []ChatMessage, limit int, err error) int {
	l.fetching = false
	if err != nil {
		return 0
	}
	added := l.Insert(msgs...)
	switch {
	case added > 0:
		l.floor = 0
	case len(msgs) >= limit && len(msgs) > 0:
		oldest := msgs[0].Timestamp
		for _, m := range msgs {
			oldest = min(oldest, m.Timestamp)
		}
		l.floor = oldest - 1
		log.Printf("messageList: page of duplicates for %s, next before=%d", shortPK(l.channelID), l.floor)
	default:
		log.Printf("messageList: history exhausted for %s", shortPK(l.channelID))
		l.exhausted = true
	}
	return added
}

// Fetching reports whether a history fetch is in flight.
func (l *MessageList) Fetching() bool {
	return l.fetching
}

// Exhausted reports whether the oldest message has been reached.
func (l *MessageList) Exhausted() bool {
	return l.exhausted
}

func (l *MessageList) rebuild() {
	summaries := make(map[string]string, len(l.reactions))
	for id := range l.reactions {
		if l.seen[id] {
			summaries[id] = l.ReactionSummary(id)
		}
	}
	l.sections = buildSections(l.msgs, summaries)
	if l.OnDataChanged != nil {
		l.OnDataChanged(l.sections)
	}
}

// insertMessage inserts msg keeping timestamp order; equal timestamps keep
// arrival order.
func insertMessage(msgs []ChatMessage, msg ChatMessage) []ChatMessage {
	i := len(msgs)
	for i > 0 && msgs[i-1].Timestamp > msg.Timestamp {
		i--
	}
	msgs = append(msgs, ChatMessage{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}
