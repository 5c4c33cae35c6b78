package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	bodyIndent  = 2
	quotePrefix = "  │ "
)

// cellSurface is a reusable off-screen cell for one item kind. The same
// surface measures and renders, so a measured height always matches what
// is drawn.
type cellSurface interface {
	prepareForReuse()
	configure(item Item, insets int)
	// render draws the configured item for the given available width; the
	// content area is that width minus the insets.
	render(width int) string
}

// cellEnv is the state shared by all surfaces of a sizer.
type cellEnv struct {
	names   func(pubkey string) string
	style   string
	md      *glamour.TermRenderer
	mdWidth int
}

// markdown returns a glamour renderer wrapping at width, or nil when
// markdown rendering is disabled.
func (e *cellEnv) markdown(width int) *glamour.TermRenderer {
	if e.style == "" {
		return nil
	}
	if e.md == nil || e.mdWidth != width {
		e.md = newMarkdownRenderer(width, e.style)
		e.mdWidth = width
	}
	return e.md
}

func (e *cellEnv) displayName(msg ChatMessage) string {
	if e.names != nil && msg.PubKey != "" {
		if n := e.names(msg.PubKey); n != "" {
			return n
		}
	}
	return msg.Author
}

// cellKinds is the closed registry of surfaces. KindUnknown has no entry.
var cellKinds = map[ItemKind]func(env *cellEnv) cellSurface{
	KindMessage:       func(env *cellEnv) cellSurface { return &messageCell{env: env, header: true} },
	KindSequential:    func(env *cellEnv) cellSurface { return &messageCell{env: env} },
	KindDateSeparator: func(env *cellEnv) cellSurface { return &dateSeparatorCell{} },
	KindQuote:         func(env *cellEnv) cellSurface { return &quoteCell{} },
	KindURL:           func(env *cellEnv) cellSurface { return &linkCell{label: "link"} },
	KindImage:         func(env *cellEnv) cellSurface { return &linkCell{label: "image", named: true} },
	KindFile:          func(env *cellEnv) cellSurface { return &linkCell{label: "file", named: true} },
	KindAudio:         func(env *cellEnv) cellSurface { return &linkCell{label: "audio", named: true} },
	KindVideo:         func(env *cellEnv) cellSurface { return &linkCell{label: "video", named: true} },
	KindReactions:     func(env *cellEnv) cellSurface { return &reactionsCell{} },
	KindSystem:        func(env *cellEnv) cellSurface { return &systemCell{} },
}

// CellSizer hands out one measurement surface per item kind and runs
// measurement passes on them.
type CellSizer struct {
	env      *cellEnv
	surfaces map[ItemKind]cellSurface
	passes   int
}

// NewCellSizer creates a sizer. style is the glamour style ("" renders
// message bodies as plain text); names resolves pubkeys to display names.
func NewCellSizer(style string, names func(pubkey string) string) *CellSizer {
	return &CellSizer{
		env:      &cellEnv{names: names, style: style},
		surfaces: make(map[ItemKind]cellSurface),
	}
}

// Surface returns the representative surface for kind, or false for kinds
// without a cell.
func (s *CellSizer) Surface(kind ItemKind) (cellSurface, bool) {
	if surf, ok := s.surfaces[kind]; ok {
		return surf, true
	}
	ctor, ok := cellKinds[kind]
	if !ok {
		return nil, false
	}
	surf := ctor(s.env)
	s.surfaces[kind] = surf
	return surf, true
}

// Measure resets surf, feeds it item and returns its fitted size.
func (s *CellSizer) Measure(surf cellSurface, item Item, insets, available int) Size {
	out := s.draw(surf, item, insets, available)
	s.passes++
	return Size{Width: lipgloss.Width(out), Height: lipgloss.Height(out)}
}

// Render draws item at the available width. Unknown kinds render nothing.
func (s *CellSizer) Render(item Item, insets, available int) string {
	surf, ok := s.Surface(item.Kind)
	if !ok {
		return ""
	}
	return s.draw(surf, item, insets, available)
}

// Passes returns how many measurement passes have run.
func (s *CellSizer) Passes() int {
	return s.passes
}

func (s *CellSizer) draw(surf cellSurface, item Item, insets, available int) string {
	surf.prepareForReuse()
	surf.configure(item, insets)
	return surf.render(available)
}

// sizeForItem returns the size of item at the available width, measuring it
// only when the cache has no entry for the item's identity. The width is
// always the full usable width; only the height comes from measurement.
// Items without a surface get a zero size, which is not cached.
func sizeForItem(cache *SizeCache, sizer *CellSizer, item Item, available, insets int) Size {
	if s, ok := cache.Get(item.ID); ok {
		return s
	}
	s, ok := measureItem(sizer, item, available, insets)
	if !ok {
		return Size{}
	}
	cache.Set(item.ID, s)
	return s
}

// measureItem runs a measurement pass for item without consulting the cache.
func measureItem(sizer *CellSizer, item Item, available, insets int) (Size, bool) {
	surf, ok := sizer.Surface(item.Kind)
	if !ok {
		return Size{}, false
	}
	measured := sizer.Measure(surf, item, insets, available)
	return Size{Width: max(available-insets, 0), Height: measured.Height}, true
}

func contentWidth(width, insets int) int {
	return max(width-insets, 1)
}

type messageCell struct {
	env    *cellEnv
	header bool
	item   Item
	insets int
}

func (c *messageCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *messageCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *messageCell) render(width int) string {
	cw := contentWidth(width, c.insets)
	var lines []string
	if c.header {
		msg := c.item.Message
		ts := chatTimestampStyle.Render(msg.Timestamp.Time().Format("15:04"))
		author := lipgloss.NewStyle().Foreground(colorForPubkey(msg.PubKey)).Bold(true).Render(c.env.displayName(msg))
		lines = append(lines, wrapLines([]string{ts + " " + author}, cw)...)
	}
	if c.item.Text != "" {
		bw := max(cw-bodyIndent, 1)
		// Convert single newlines to paragraph breaks for glamour.
		content := renderMarkdown(c.env.markdown(bw), strings.ReplaceAll(c.item.Text, "\n", "\n\n"))
		pad := strings.Repeat(" ", bodyIndent)
		for _, l := range wrapLines(trimBlankLines(strings.Split(content, "\n")), bw) {
			lines = append(lines, pad+l)
		}
	}
	return strings.Join(lines, "\n")
}

type dateSeparatorCell struct {
	item   Item
	insets int
}

func (c *dateSeparatorCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *dateSeparatorCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *dateSeparatorCell) render(width int) string {
	cw := contentWidth(width, c.insets)
	label := "── " + c.item.Date.Local().Format("Mon, 02 Jan 2006") + " ──"
	if lipgloss.Width(label) > cw {
		label = c.item.Date.Local().Format("2006-01-02")
	}
	return lipgloss.PlaceHorizontal(cw, lipgloss.Center, dateSeparatorStyle.Render(label))
}

type quoteCell struct {
	item   Item
	insets int
}

func (c *quoteCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *quoteCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *quoteCell) render(width int) string {
	qw := max(contentWidth(width, c.insets)-lipgloss.Width(quotePrefix), 1)
	var lines []string
	for _, l := range wrapLines(strings.Split(c.item.Text, "\n"), qw) {
		lines = append(lines, quotePrefix+quoteStyle.Render(l))
	}
	return strings.Join(lines, "\n")
}

// linkCell renders links and media or file attachments. Named cells show the
// file name on the label row and the URL below it.
type linkCell struct {
	label  string
	named  bool
	item   Item
	insets int
}

func (c *linkCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *linkCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *linkCell) render(width int) string {
	cw := contentWidth(width, c.insets)
	pad := strings.Repeat(" ", bodyIndent)
	label := attachmentLabelStyle.Render("[" + c.label + "]")
	var lines []string
	if c.named {
		lines = append(lines, wrapLines([]string{pad + label + " " + fileName(c.item.URL)}, cw)...)
	}
	uw := max(cw-bodyIndent, 1)
	for i, l := range wrapLines([]string{c.item.URL}, uw) {
		if i == 0 && !c.named {
			// Unnamed links keep the label on the first URL row when it fits.
			if lipgloss.Width(label)+1+lipgloss.Width(l) <= uw {
				lines = append(lines, pad+label+" "+linkStyle.Render(l))
				continue
			}
			lines = append(lines, pad+label)
		}
		lines = append(lines, pad+linkStyle.Render(l))
	}
	return strings.Join(lines, "\n")
}

// reactionsCell renders the reaction counts under a message, wrapping
// between entries.
type reactionsCell struct {
	item   Item
	insets int
}

func (c *reactionsCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *reactionsCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *reactionsCell) render(width int) string {
	rw := max(contentWidth(width, c.insets)-bodyIndent, 1)
	pad := strings.Repeat(" ", bodyIndent)
	var lines []string
	line := ""
	for _, entry := range strings.Split(c.item.Text, "  ") {
		switch {
		case line == "":
			line = entry
		case lipgloss.Width(line)+2+lipgloss.Width(entry) <= rw:
			line += "  " + entry
		default:
			lines = append(lines, line)
			line = entry
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	var out []string
	for _, l := range wrapLines(lines, rw) {
		out = append(out, pad+reactionStyle.Render(l))
	}
	return strings.Join(out, "\n")
}

type systemCell struct {
	item   Item
	insets int
}

func (c *systemCell) prepareForReuse() { c.item, c.insets = Item{}, 0 }

func (c *systemCell) configure(item Item, insets int) { c.item, c.insets = item, insets }

func (c *systemCell) render(width int) string {
	sw := max(contentWidth(width, c.insets)-bodyIndent, 1)
	pad := strings.Repeat(" ", bodyIndent)
	var lines []string
	for _, l := range wrapLines(strings.Split(c.item.Text, "\n"), sw) {
		lines = append(lines, pad+chatSystemStyle.Render(l))
	}
	return strings.Join(lines, "\n")
}
