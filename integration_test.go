package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/fiatjaf/eventstore/slicestore"
	"github.com/fiatjaf/khatru"
	"github.com/nbd-wtf/go-nostr"
)

const defaultTimeout = 15 * time.Second

// ─── Embedded relay ──────────────────────────────────────────────────────────

func startTestRelay(t *testing.T) (relayURL string, db *slicestore.SliceStore) {
	t.Helper()

	db = &slicestore.SliceStore{}
	if err := db.Init(); err != nil {
		t.Fatalf("db.Init: %v", err)
	}

	relay := khatru.NewRelay()
	relay.Info.Name = "rivulet-test-relay"
	relay.StoreEvent = append(relay.StoreEvent, db.SaveEvent)
	relay.QueryEvents = append(relay.QueryEvents, db.QueryEvents)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &http.Server{Handler: relay}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		db.Close()
	})

	url := fmt.Sprintf("ws://%s", ln.Addr().String())
	t.Logf("test relay running at %s", url)
	return url, db
}

// ─── Seeding helpers ─────────────────────────────────────────────────────────

type testAuthor struct {
	sk string
	pk string
}

func newTestAuthor(t *testing.T) testAuthor {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	return testAuthor{sk: sk, pk: pk}
}

func (a testAuthor) sign(t *testing.T, ev nostr.Event) nostr.Event {
	t.Helper()
	ev.PubKey = a.pk
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	if err := ev.Sign(a.sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return ev
}

// seedChannel stores a kind-40 channel, a kind-0 profile and n kind-42
// messages one minute apart, returning the channel id and the messages.
func seedChannel(t *testing.T, db *slicestore.SliceStore, author testAuthor, n int, start nostr.Timestamp) (string, []nostr.Event) {
	t.Helper()
	ctx := context.Background()

	create := author.sign(t, nostr.Event{Kind: 40, CreatedAt: start - 60, Content: `{"name":"testroom","about":"integration"}`})
	profile := author.sign(t, nostr.Event{Kind: 0, CreatedAt: start - 60, Content: `{"name":"alice","display_name":"Alice"}`})
	for _, ev := range []nostr.Event{create, profile} {
		if err := db.SaveEvent(ctx, &ev); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	msgs := make([]nostr.Event, n)
	for i := range msgs {
		msgs[i] = author.sign(t, nostr.Event{
			Kind:      42,
			CreatedAt: start + nostr.Timestamp(i*60),
			Tags:      nostr.Tags{{"e", create.ID, "", "root"}},
			Content:   fmt.Sprintf("message %d", i),
		})
		if err := db.SaveEvent(ctx, &msgs[i]); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}
	return create.ID, msgs
}

// waitFor blocks until the program output has contained every substring.
// Output is consumed, so everything expected from one frame goes in one call.
func waitFor(t *testing.T, tm *teatest.TestModel, timeout time.Duration, substrs ...string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(),
		func(b []byte) bool {
			for _, s := range substrs {
				if !bytes.Contains(b, []byte(s)) {
					return false
				}
			}
			return true
		},
		teatest.WithDuration(timeout),
		teatest.WithCheckInterval(200*time.Millisecond),
	)
}

// ─── Integration Test ────────────────────────────────────────────────────────

func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	relayURL, db := startTestRelay(t)
	alice := newTestAuthor(t)
	start := nostr.Now() - 3600
	channelID, seeded := seedChannel(t, db, alice, 30, start)
	relays := []string{relayURL}

	pool := nostr.NewSimplePool(context.Background())
	defer pool.Close("test done")

	t.Run("history/page-before", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()

		h := relayHistory{pool: pool, relays: relays}
		before := seeded[20].CreatedAt
		page, err := h.FetchBefore(ctx, channelID, before, 5)
		if err != nil {
			t.Fatalf("FetchBefore: %v", err)
		}
		if len(page) != 5 {
			t.Fatalf("got %d messages, want 5", len(page))
		}
		for i, msg := range page {
			if msg.Timestamp > before {
				t.Errorf("page[%d] at %d is newer than %d", i, msg.Timestamp, before)
			}
			if i > 0 && msg.Timestamp < page[i-1].Timestamp {
				t.Errorf("page is not oldest first at %d", i)
			}
			if msg.ChannelID != channelID || msg.PubKey != alice.pk {
				t.Errorf("page[%d] = %+v", i, msg)
			}
		}

		// Paging through the list dedups the boundary message.
		l := newMessageList(channelID)
		l.Insert(chatMessageFromEvent(&seeded[20], channelID))
		if added := l.Insert(page...); added != 4 {
			t.Errorf("added %d older messages, want 4", added)
		}
	})

	t.Run("history/exhausted", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()

		h := relayHistory{pool: pool, relays: relays}
		page, err := h.FetchBefore(ctx, channelID, seeded[0].CreatedAt-1, 5)
		if err != nil {
			t.Fatalf("FetchBefore: %v", err)
		}
		if len(page) != 0 {
			t.Errorf("got %d messages before the first one", len(page))
		}
	})

	t.Run("channel/meta", func(t *testing.T) {
		msg := fetchChannelMetaCmd(pool, relays, channelID)()
		meta, ok := msg.(channelMetaMsg)
		if !ok || meta.Name != "testroom" {
			t.Errorf("got %#v, want channel name testroom", msg)
		}
	})

	t.Run("profile/resolve", func(t *testing.T) {
		msg := fetchProfileCmd(pool, relays, alice.pk)()
		p, ok := msg.(profileResolvedMsg)
		if !ok || p.DisplayName != "Alice" {
			t.Errorf("got %#v, want display name Alice", msg)
		}
	})

	t.Run("reactions/fetch", func(t *testing.T) {
		carol := newTestAuthor(t)
		target := seeded[29]
		like := carol.sign(t, nostr.Event{
			Kind:      7,
			CreatedAt: nostr.Now(),
			Tags:      nostr.Tags{{"e", target.ID}, {"p", alice.pk}},
			Content:   "+",
		})
		if err := db.SaveEvent(context.Background(), &like); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}

		msg := fetchReactionsCmd(pool, relays, channelID, []string{target.ID, seeded[0].ID})()
		got, ok := msg.(reactionsFetchedMsg)
		if !ok || got.channelID != channelID || len(got.reactions) != 1 {
			t.Fatalf("got %#v, want one reaction", msg)
		}
		want := Reaction{ID: like.ID, Target: target.ID, PubKey: carol.pk, Content: "+"}
		if got.reactions[0] != want {
			t.Errorf("reaction = %+v, want %+v", got.reactions[0], want)
		}
	})

	t.Run("tui/live", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Relays = relays
		cfg.LogDir = t.TempDir()
		cfg.Channels = []ChannelConfig{{ID: channelID, Name: shortPK(channelID)}}

		history := historyChain{logHistory{dir: cfg.LogDir}, relayHistory{pool: pool, relays: relays}}
		m := newModel(cfg, "", pool, history, termPresenter{}, "")
		tm := teatest.NewTestModel(t, &m, teatest.WithInitialTermSize(100, 30))
		defer func() { _ = tm.Quit() }()

		// Messages 1..29 are grouped under message 0's header, which is
		// scrolled off the top of a pinned view.
		waitFor(t, tm, defaultTimeout, "#testroom", "message 29")

		bob := newTestAuthor(t)
		live := bob.sign(t, nostr.Event{
			Kind:      42,
			CreatedAt: nostr.Now(),
			Tags:      nostr.Tags{{"e", channelID, "", "root"}},
			Content:   "hello from a live subscriber",
		})
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		r, err := nostr.RelayConnect(ctx, relayURL)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		defer func() { _ = r.Close() }()
		if err := r.Publish(ctx, live); err != nil {
			t.Fatalf("publish: %v", err)
		}

		// A different author starts a new header row.
		waitFor(t, tm, defaultTimeout, "hello from a live subscriber", shortPK(bob.pk))

		tm.Send(tea.KeyMsg{Type: tea.KeyHome})
		waitFor(t, tm, defaultTimeout, "Alice", "message 0")
	})
}
