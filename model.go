package main

import (
	"context"
	"log"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/nbd-wtf/go-nostr"
)

const (
	// initialLogMessages is how many logged messages seed a channel at startup.
	initialLogMessages = 200
	wheelStep          = 3
)

type keyMap struct {
	Up, Down         key.Binding
	PageUp, PageDown key.Binding
	Top, Bottom      key.Binding
	Activate         key.Binding
	UserActions      key.Binding
	NextChannel      key.Binding
	PrevChannel      key.Binding
	Search           key.Binding
	Cancel           key.Binding
	Quit             key.Binding
}

var keys = keyMap{
	Up:          key.NewBinding(key.WithKeys("up", "k")),
	Down:        key.NewBinding(key.WithKeys("down", "j")),
	PageUp:      key.NewBinding(key.WithKeys("pgup", "ctrl+u")),
	PageDown:    key.NewBinding(key.WithKeys("pgdown", "ctrl+d")),
	Top:         key.NewBinding(key.WithKeys("home", "g")),
	Bottom:      key.NewBinding(key.WithKeys("end", "G")),
	Activate:    key.NewBinding(key.WithKeys("enter")),
	UserActions: key.NewBinding(key.WithKeys("u")),
	NextChannel: key.NewBinding(key.WithKeys("tab")),
	PrevChannel: key.NewBinding(key.WithKeys("shift+tab")),
	Search:      key.NewBinding(key.WithKeys("/")),
	Cancel:      key.NewBinding(key.WithKeys("esc")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// channelSub is a live subscription to one channel.
type channelSub struct {
	events <-chan nostr.RelayEvent
	cancel context.CancelFunc
}

// sheetAction is one row of the user action sheet.
type sheetAction struct {
	label string
	run   func(m *model) tea.Cmd
}

// actionSheet is the overlay shown for PresentUserActions.
type actionSheet struct {
	user    User
	source  *ActionSource
	actions []sheetAction
	index   int
}

type model struct {
	// Config
	cfg         Config
	cfgFlagPath string
	pool        *nostr.SimplePool
	relays      []string
	history     HistorySource
	presenter   Presenter

	// TUI dimensions
	width  int
	height int

	// Channels
	channels []Channel
	active   int
	lists    map[string]*MessageList
	views    map[string]*chatView
	subs     map[string]channelSub
	unread   map[string]bool

	// Layout
	cache   *SizeCache
	sizer   *CellSizer
	mdStyle string
	anchors map[string]scrollAnchor // pending second phase of a resize

	// Reactions (NIP-25 kind 7), by channel
	reactionQueue map[string][]string

	// Profile resolution (NIP-01 kind 0)
	profiles       map[string]string // pubkey -> display name
	profilePending map[string]bool   // pubkeys with in-flight fetches

	// Search prompt
	search    textinput.Model
	searching bool

	// Overlays
	sheet     *actionSheet
	preview   *Document
	qrOverlay string

	// Status
	statusMsg string
	statusErr bool
}

func newModel(cfg Config, cfgFlagPath string, pool *nostr.SimplePool, history HistorySource, presenter Presenter, mdStyle string) model {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "search loaded messages"
	ti.CharLimit = 256

	profiles := make(map[string]string)
	m := model{
		cfg:            cfg,
		cfgFlagPath:    cfgFlagPath,
		pool:           pool,
		relays:         cfg.Relays,
		history:        history,
		presenter:      presenter,
		channels:       channelsFromConfig(cfg),
		lists:          make(map[string]*MessageList),
		views:          make(map[string]*chatView),
		subs:           make(map[string]channelSub),
		unread:         make(map[string]bool),
		cache:          NewSizeCache(cfg.CacheEntries()),
		mdStyle:        mdStyle,
		profiles:       profiles,
		profilePending: make(map[string]bool),
		reactionQueue:  make(map[string][]string),
		search:         ti,
	}
	m.sizer = NewCellSizer(mdStyle, func(pk string) string { return profiles[pk] })

	for _, ch := range m.channels {
		l := m.addChannel(ch.ID)
		if dir := cfg.logDir(); dir != "" {
			msgs, err := loadLogHistory(dir, ch.ID, initialLogMessages)
			if err != nil {
				log.Printf("newModel: log history for %s: %v", shortPK(ch.ID), err)
			}
			l.Insert(msgs...)
			m.queueReactions(ch.ID, msgs...)
		}
	}
	return m
}

// addChannel creates the list and view for a channel and binds them.
func (m *model) addChannel(channelID string) *MessageList {
	l := newMessageList(channelID)
	v := newChatView(l, m.cache, m.sizer, m.cfg.Insets())
	l.OnDataChanged = func([]Section) { v.DataChanged() }
	m.lists[channelID] = l
	m.views[channelID] = v
	return l
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.SetWindowTitle("rivulet")}
	for _, ch := range m.channels {
		cmds = append(cmds, subscribeChannelCmd(m.pool, m.relays, ch.ID, m.cfg.PageSize))
		if ch.Name == shortPK(ch.ID) {
			cmds = append(cmds, fetchChannelMetaCmd(m.pool, m.relays, ch.ID))
		}
		for _, msg := range m.lists[ch.ID].Messages() {
			if cmd := m.maybeRequestProfile(msg.PubKey); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}
	if m.pool != nil {
		cmds = append(cmds, m.flushReactions(), reactionsTickCmd())
	}
	return tea.Batch(cmds...)
}

func (m *model) activeChannelID() string {
	if m.active >= 0 && m.active < len(m.channels) {
		return m.channels[m.active].ID
	}
	return ""
}

// activeView returns the view and list of the selected channel.
func (m *model) activeView() (*chatView, *MessageList, bool) {
	id := m.activeChannelID()
	v, ok := m.views[id]
	if !ok {
		return nil, nil, false
	}
	return v, m.lists[id], true
}

func (m *model) switchChannel(delta int) tea.Cmd {
	if len(m.channels) == 0 {
		return nil
	}
	m.active = (m.active + delta + len(m.channels)) % len(m.channels)
	delete(m.unread, m.activeChannelID())
	log.Printf("switchChannel: active=%s", shortPK(m.activeChannelID()))
	return m.maybeFetchMore()
}

// resolveAuthor returns the cached display name for a pubkey, or shortPK as fallback.
func (m *model) resolveAuthor(pubkey string) string {
	if name, ok := m.profiles[pubkey]; ok {
		return name
	}
	return shortPK(pubkey)
}

// maybeRequestProfile returns a fetchProfileCmd if we haven't seen this pubkey before.
func (m *model) maybeRequestProfile(pubkey string) tea.Cmd {
	if pubkey == "" || m.pool == nil {
		return nil
	}
	if _, ok := m.profiles[pubkey]; ok {
		return nil
	}
	if m.profilePending[pubkey] {
		return nil
	}
	m.profilePending[pubkey] = true
	return fetchProfileCmd(m.pool, m.relays, pubkey)
}

// maybeFetchMore asks for older history when a section near the oldest
// loaded one is on screen in the active channel.
func (m *model) maybeFetchMore() tea.Cmd {
	v, l, ok := m.activeView()
	if !ok || m.history == nil {
		return nil
	}
	for _, s := range v.VisibleSections() {
		if !l.ShouldFetchMore(s) {
			continue
		}
		before, ok := l.BeginFetch()
		if !ok {
			return nil
		}
		log.Printf("maybeFetchMore: channel=%s section=%d before=%d", shortPK(l.channelID), s, before)
		return fetchHistoryCmd(m.history, l.channelID, before, m.cfg.PageSize)
	}
	if l.NumberOfSections() == 0 {
		if before, ok := l.BeginFetch(); ok {
			return fetchHistoryCmd(m.history, l.channelID, before, m.cfg.PageSize)
		}
	}
	return nil
}

// listArea returns the size of the message list viewport.
func (m *model) listArea() (int, int) {
	h := m.height - lipgloss.Height(m.viewTitleBar()) - lipgloss.Height(m.viewStatusBar())
	if m.searching {
		h -= lipgloss.Height(m.search.View())
	}
	return max(m.width, 1), max(h, 1)
}

// updateLayout is the first phase of a geometry change: it records the top
// visible item of every view, clears the size cache and reflows at the new
// size. The anchors stay pending until restoreLayout; a second change
// before that keeps the first ones, since the views have not been scrolled
// back yet.
func (m *model) updateLayout() {
	if m.anchors == nil {
		m.anchors = make(map[string]scrollAnchor, len(m.views))
		for id, v := range m.views {
			m.anchors[id] = v.TopAnchor()
		}
	}
	m.cache.Clear()
	w, h := m.listArea()
	m.search.Width = max(w-2, 1)
	for _, v := range m.views {
		v.SetGeometry(w, h)
	}
}

// restoreLayout is the second phase: it scrolls every view back to its
// pending anchor.
func (m *model) restoreLayout() {
	for id, a := range m.anchors {
		v, ok := m.views[id]
		if !ok {
			continue
		}
		if !v.Restore(a) {
			log.Printf("restoreLayout: anchor %s gone in %s", a.id, shortPK(id))
		}
	}
	m.anchors = nil
}

// scrollRestoreMsg triggers restoreLayout once the resized frame is drawn.
type scrollRestoreMsg struct{}

func restoreScrollCmd() tea.Cmd {
	return func() tea.Msg { return scrollRestoreMsg{} }
}

// relayoutAll remeasures every view in place after something that changes
// cell heights at the same geometry, such as a resolved display name.
func (m *model) relayoutAll() {
	pinned := make(map[string]bool, len(m.views))
	for id, v := range m.views {
		pinned[id] = v.AtBottom()
	}
	fresh := m.anchors == nil
	m.updateLayout()
	for id := range m.anchors {
		if fresh && pinned[id] {
			m.anchors[id] = scrollAnchor{pinned: true}
		}
	}
	m.restoreLayout()
}

// queueReactions marks messages whose reactions should be fetched on the
// next poll.
func (m *model) queueReactions(channelID string, msgs ...ChatMessage) {
	for _, msg := range msgs {
		if msg.EventID != "" && !msg.IsSystem() {
			m.reactionQueue[channelID] = append(m.reactionQueue[channelID], msg.EventID)
		}
	}
}

// flushReactions fetches reactions for every queued message and empties the
// queue. Without a pool the queue is dropped.
func (m *model) flushReactions() tea.Cmd {
	var cmds []tea.Cmd
	for id, ids := range m.reactionQueue {
		if len(ids) > 0 && m.pool != nil {
			cmds = append(cmds, fetchReactionsCmd(m.pool, m.relays, id, slices.Compact(slices.Sorted(slices.Values(ids)))))
		}
		delete(m.reactionQueue, id)
	}
	return tea.Batch(cmds...)
}

// addSystemMsg adds a notice to the active channel, or the status line when
// no channel is configured.
func (m *model) addSystemMsg(text string) {
	log.Printf("system: %s", text)
	if _, l, ok := m.activeView(); ok {
		l.AddNotice(text)
		return
	}
	m.setStatus(text, false)
}

func (m *model) setStatus(text string, isErr bool) {
	m.statusMsg = text
	m.statusErr = isErr
}

// openUserActions builds the action sheet for a user.
func (m *model) openUserActions(user User, source *ActionSource) {
	npub := npubFor(user.PubKey)
	m.sheet = &actionSheet{
		user:   user,
		source: source,
		actions: []sheetAction{
			{label: "Copy public key", run: func(*model) tea.Cmd { return copyToClipboardCmd("public key", user.PubKey) }},
			{label: "Copy npub", run: func(*model) tea.Cmd { return copyToClipboardCmd("npub", npub) }},
			{label: "Show npub QR", run: func(m *model) tea.Cmd {
				m.qrOverlay = renderQR(user.Name, npub)
				return nil
			}},
			{label: "Cancel", run: func(*model) tea.Cmd { return nil }},
		},
	}
}

// renderQR renders a QR code with a title line above it.
func renderQR(title, content string) string {
	var buf strings.Builder
	buf.WriteString(qrTitleStyle.Render(title))
	buf.WriteString("\n\n")
	qrterminal.GenerateWithConfig(content, qrterminal.Config{
		Level:          qrterminal.M,
		Writer:         &buf,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		QuietZone:      1,
	})
	return buf.String()
}

// shutdown cancels every live subscription.
func (m *model) shutdown() {
	for id, sub := range m.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
		delete(m.subs, id)
	}
}
