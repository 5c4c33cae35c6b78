package main

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"
)

// ItemKind selects the cell used to render and measure an item.
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindMessage
	KindSequential // same author shortly after the previous message, no header
	KindDateSeparator
	KindQuote
	KindURL
	KindImage
	KindFile
	KindAudio
	KindVideo
	KindReactions
	KindSystem
)

func (k ItemKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindSequential:
		return "sequential"
	case KindDateSeparator:
		return "date"
	case KindQuote:
		return "quote"
	case KindURL:
		return "url"
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindReactions:
		return "reactions"
	case KindSystem:
		return "system"
	}
	return "unknown"
}

// Item is one row-group of the message list.
type Item struct {
	ID      ItemID
	Kind    ItemKind
	Message ChatMessage
	Date    time.Time // date separators only
	Text    string    // message body, quoted text or reaction summary
	URL     string    // link and attachment items
}

// Section groups the items produced by a single message.
type Section struct {
	ID    string
	Items []Item
}

// Position addresses an item by section and index within the section.
type Position struct {
	Section int
	Item    int
}

const sequentialWindow = 5 * time.Minute

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}
	audioExts = []string{".mp3", ".ogg", ".oga", ".opus", ".m4a", ".wav", ".flac", ".aac"}
	videoExts = []string{".mp4", ".webm", ".mov", ".mkv", ".m4v", ".avi"}
	fileExts  = []string{".pdf", ".zip", ".tar", ".gz", ".txt", ".md", ".doc", ".docx", ".odt", ".csv", ".json"}

	urlPattern = xurls.Strict()
)

// buildSections turns messages sorted oldest first into sections ordered
// newest first, so section 0 is the most recent message. reactions maps an
// event id to its reaction summary; messages with one get a reactions row.
func buildSections(msgs []ChatMessage, reactions map[string]string) []Section {
	sections := make([]Section, 0, len(msgs))
	var prev *ChatMessage
	for i := range msgs {
		msg := msgs[i]
		var items []Item
		t := msg.Timestamp.Time()
		newDay := prev == nil || !sameDay(prev.Timestamp.Time(), t)
		if newDay {
			day := t.Local().Format("2006-01-02")
			items = append(items, Item{
				ID:      ItemID("date:" + day),
				Kind:    KindDateSeparator,
				Message: msg,
				Date:    t,
			})
		}
		sequential := !newDay && isSequential(*prev, msg)
		items = append(items, messageItems(msg, sequential)...)
		if summary := reactions[msg.EventID]; summary != "" && !msg.IsSystem() {
			items = append(items, Item{
				ID:      ItemID("reactions:" + msg.EventID),
				Kind:    KindReactions,
				Message: msg,
				Text:    summary,
			})
		}
		sections = append(sections, Section{ID: msg.EventID, Items: items})
		prev = &msgs[i]
	}
	slices.Reverse(sections)
	return sections
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

func isSequential(prev, msg ChatMessage) bool {
	if prev.IsSystem() || msg.IsSystem() || prev.PubKey == "" || prev.PubKey != msg.PubKey {
		return false
	}
	d := msg.Timestamp.Time().Sub(prev.Timestamp.Time())
	return d >= 0 && d < sequentialWindow
}

// messageItems splits a message into its body, quote and attachment items.
func messageItems(msg ChatMessage, sequential bool) []Item {
	if msg.IsSystem() {
		return []Item{{ID: ItemID("system:" + msg.EventID), Kind: KindSystem, Message: msg, Text: msg.Content}}
	}

	var body, quote []string
	for _, line := range strings.Split(msg.Content, "\n") {
		if strings.HasPrefix(line, ">") {
			quote = append(quote, strings.TrimSpace(strings.TrimPrefix(line, ">")))
			continue
		}
		body = append(body, line)
	}
	text := strings.TrimSpace(strings.Join(body, "\n"))
	links := extractURLs(text)

	var items []Item
	kind := KindMessage
	if sequential {
		kind = KindSequential
	}
	// A message made only of a quote or links still gets its header row;
	// a sequential one has nothing to show in that case.
	if !sequential || text != "" || (len(quote) == 0 && len(links) == 0) {
		items = append(items, Item{
			ID:      ItemID(kind.String() + ":" + msg.EventID),
			Kind:    kind,
			Message: msg,
			Text:    text,
		})
	}
	if len(quote) > 0 {
		items = append(items, Item{
			ID:      ItemID("quote:" + msg.EventID),
			Kind:    KindQuote,
			Message: msg,
			Text:    strings.Join(quote, "\n"),
		})
	}
	for n, u := range links {
		k := classifyURL(u)
		items = append(items, Item{
			ID:      ItemID(fmt.Sprintf("%s:%s:%d", k, msg.EventID, n)),
			Kind:    k,
			Message: msg,
			URL:     u,
		})
	}
	return items
}

// extractURLs returns the http(s) links in text, in order, without
// duplicates. Markdown link targets are found as well.
func extractURLs(text string) []string {
	var out []string
	for _, f := range urlPattern.FindAllString(text, -1) {
		u, err := url.Parse(f)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func classifyURL(raw string) ItemKind {
	u, err := url.Parse(raw)
	if err != nil {
		return KindURL
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case slices.Contains(imageExts, ext):
		return KindImage
	case slices.Contains(audioExts, ext):
		return KindAudio
	case slices.Contains(videoExts, ext):
		return KindVideo
	case slices.Contains(fileExts, ext):
		return KindFile
	}
	return KindURL
}

// fileName returns the last path element of a link, for file previews.
func fileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return raw
	}
	return path.Base(u.Path)
}
