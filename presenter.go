package main

import (
	"fmt"
	"log"
	"net/url"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/pkg/browser"
)

// User identifies the author an action sheet is shown for.
type User struct {
	PubKey string
	Name   string
}

// Rect is a screen rectangle in terminal cells.
type Rect struct {
	X, Y, Width, Height int
}

// ActionSource describes where an action sheet was requested from. Both
// fields are optional; without a rect the sheet is centered.
type ActionSource struct {
	View string
	Rect *Rect
}

// Document is an attachment that can be previewed.
type Document struct {
	Name string
	URL  string
}

// Presenter handles the interactions the message list forwards outward.
type Presenter interface {
	OpenURL(u *url.URL) tea.Cmd
	PreviewDocument(doc Document) tea.Cmd
	PresentUserActions(user User, source *ActionSource) tea.Cmd
}

// Messages produced by the terminal presenter.
type (
	urlOpenedMsg       struct{ url string }
	documentPreviewMsg struct{ doc Document }
	userActionsMsg     struct {
		user   User
		source *ActionSource
	}
	clipboardCopiedMsg struct{ what string }
	presenterErrMsg    struct{ err error }
)

func (e presenterErrMsg) Error() string { return e.err.Error() }

// termPresenter opens links in the desktop browser and hands previews and
// action sheets back to the model as overlays.
type termPresenter struct {
	// open launches the browser; nil means browser.OpenURL.
	open func(url string) error
}

func (p termPresenter) OpenURL(u *url.URL) tea.Cmd {
	open := p.open
	if open == nil {
		open = browser.OpenURL
	}
	return func() tea.Msg {
		if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
			return presenterErrMsg{fmt.Errorf("refusing to open %v", u)}
		}
		if err := open(u.String()); err != nil {
			return presenterErrMsg{fmt.Errorf("open %s: %w", u, err)}
		}
		log.Printf("presenter: opened %s", u)
		return urlOpenedMsg{url: u.String()}
	}
}

func (termPresenter) PreviewDocument(doc Document) tea.Cmd {
	return func() tea.Msg {
		return documentPreviewMsg{doc: doc}
	}
}

func (termPresenter) PresentUserActions(user User, source *ActionSource) tea.Cmd {
	return func() tea.Msg {
		return userActionsMsg{user: user, source: source}
	}
}

// copyToClipboardCmd copies text to the system clipboard, falling back to
// an OSC 52 escape sequence when no clipboard utility is available.
func copyToClipboardCmd(what, text string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			log.Printf("clipboard: %v, falling back to OSC 52", err)
			fmt.Print(osc52.New(text).String())
		}
		return clipboardCopiedMsg{what: what}
	}
}

// npubFor encodes a hex pubkey as npub, returning the hex key on failure.
func npubFor(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		return pubkey
	}
	return npub
}
