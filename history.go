package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nbd-wtf/go-nostr"
)

const historyTimeout = 15 * time.Second

// HistorySource returns channel messages older than a point in time.
type HistorySource interface {
	// FetchBefore returns up to limit messages older than before, oldest
	// first. Events at exactly before may be included; the list drops them
	// as duplicates.
	FetchBefore(ctx context.Context, channelID string, before nostr.Timestamp, limit int) ([]ChatMessage, error)
}

// relayHistory pages backward through a channel on the configured relays.
type relayHistory struct {
	pool   *nostr.SimplePool
	relays []string
}

func (h relayHistory) FetchBefore(ctx context.Context, channelID string, before nostr.Timestamp, limit int) ([]ChatMessage, error) {
	if len(h.relays) == 0 {
		return nil, nil
	}
	// Until is inclusive so unseen events sharing the boundary second are
	// not skipped.
	until := before
	filter := nostr.Filter{
		Kinds: []int{42},
		Tags:  nostr.TagMap{"e": {channelID}},
		Until: &until,
		Limit: limit,
	}
	log.Printf("relayHistory: channel=%s until=%d limit=%d", shortPK(channelID), until, limit)

	seen := make(map[string]bool)
	var msgs []ChatMessage
	for re := range h.pool.FetchMany(ctx, h.relays, filter) {
		if re.Event == nil || seen[re.ID] {
			continue
		}
		seen[re.ID] = true
		msgs = append(msgs, chatMessageFromEvent(re.Event, channelID))
	}
	if err := ctx.Err(); err != nil && len(msgs) == 0 {
		return nil, fmt.Errorf("relay history: %w", err)
	}
	sortMessages(msgs)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// logHistory reads older messages from the local chat logs.
type logHistory struct {
	dir string
}

func (h logHistory) FetchBefore(_ context.Context, channelID string, before nostr.Timestamp, limit int) ([]ChatMessage, error) {
	return loadLogHistoryBefore(h.dir, channelID, before, limit)
}

// historyChain asks each source in turn and returns the first non-empty page.
type historyChain []HistorySource

func (c historyChain) FetchBefore(ctx context.Context, channelID string, before nostr.Timestamp, limit int) ([]ChatMessage, error) {
	var firstErr error
	for _, src := range c {
		msgs, err := src.FetchBefore(ctx, channelID, before, limit)
		if err != nil {
			log.Printf("historyChain: %T: %v", src, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}
	return nil, firstErr
}

// historyFetchedMsg carries a page of older messages back to the model.
type historyFetchedMsg struct {
	channelID string
	before    nostr.Timestamp
	limit     int
	msgs      []ChatMessage
	err       error
}

// fetchHistoryCmd loads one page of history older than before.
func fetchHistoryCmd(src HistorySource, channelID string, before nostr.Timestamp, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		msgs, err := src.FetchBefore(ctx, channelID, before, limit)
		return historyFetchedMsg{channelID: channelID, before: before, limit: limit, msgs: msgs, err: err}
	}
}

// sortMessages orders messages oldest first, keeping arrival order for ties.
func sortMessages(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}
