package main

import (
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

// placedItem is an item with its vertical position in the laid out list.
type placedItem struct {
	pos  Position
	item Item
	top  int
	size Size
}

// scrollAnchor pins an item to a line of the viewport across reflows.
// delta is how many of the item's lines are scrolled above the viewport top.
type scrollAnchor struct {
	id     ItemID
	delta  int
	pinned bool // stick to the newest message instead
}

// chatView lays out one channel's message list and scrolls over it. Item
// heights come from the shared SizeCache, so a reflow only measures items
// that have not been seen at the current width.
type chatView struct {
	list   *MessageList
	cache  *SizeCache
	sizer  *CellSizer
	insets int

	width  int
	height int

	layout []placedItem
	total  int
	// offset is the number of lines between the bottom of the content and
	// the bottom of the viewport; 0 shows the newest message.
	offset   int
	selected ItemID
}

func newChatView(list *MessageList, cache *SizeCache, sizer *CellSizer, insets int) *chatView {
	return &chatView{
		list:   list,
		cache:  cache,
		sizer:  sizer,
		insets: insets,
	}
}

// SetGeometry applies a new list area and reflows. The caller must have
// cleared the SizeCache if the width changed.
func (v *chatView) SetGeometry(width, height int) {
	v.width = max(width, 0)
	v.height = max(height, 0)
	v.reflow()
}

// DataChanged reflows after the list's sections changed, keeping the
// visible content in place unless the view is following the newest message.
func (v *chatView) DataChanged() {
	a := v.TopAnchor()
	if v.offset == 0 {
		a = scrollAnchor{pinned: true}
	}
	v.reflow()
	v.Restore(a)
}

// Remeasure replaces the cached sizes of items whose content changed under
// the same identity, then reflows keeping the visible content in place.
func (v *chatView) Remeasure(ids ...ItemID) {
	if v.width == 0 || len(ids) == 0 {
		return
	}
	a := v.TopAnchor()
	if v.offset == 0 {
		a = scrollAnchor{pinned: true}
	}
	for _, p := range v.layout {
		if !slices.Contains(ids, p.item.ID) {
			continue
		}
		if size, ok := measureItem(v.sizer, p.item, v.width, v.insets); ok {
			v.cache.Set(p.item.ID, size)
		}
	}
	v.reflow()
	v.Restore(a)
}

// reflow lays the sections out at the current width. Nothing is measured
// before the first geometry arrives.
func (v *chatView) reflow() {
	v.layout = v.layout[:0]
	if v.width == 0 {
		v.total, v.offset = 0, 0
		return
	}
	top := 0
	sections := v.list.Sections()
	for s := len(sections) - 1; s >= 0; s-- {
		for i, it := range sections[s].Items {
			size := sizeForItem(v.cache, v.sizer, it, v.width, v.insets)
			v.layout = append(v.layout, placedItem{pos: Position{Section: s, Item: i}, item: it, top: top, size: size})
			top += size.Height
		}
	}
	v.total = top
	v.offset = clamp(v.offset, 0, v.maxOffset())
}

func (v *chatView) maxOffset() int {
	return max(v.total-v.height, 0)
}

// windowTop is the content line shown on the first viewport row.
func (v *chatView) windowTop() int {
	return max(v.total-v.height-v.offset, 0)
}

// TopAnchor returns the item on the first viewport row. An empty view
// yields a pinned anchor.
func (v *chatView) TopAnchor() scrollAnchor {
	wt := v.windowTop()
	for _, p := range v.layout {
		if p.top+p.size.Height > wt {
			return scrollAnchor{id: p.item.ID, delta: wt - p.top}
		}
	}
	return scrollAnchor{pinned: true}
}

// Restore scrolls so the anchored item is back on the first viewport row.
// It returns false when the item is no longer in the list.
func (v *chatView) Restore(a scrollAnchor) bool {
	if a.pinned {
		v.offset = 0
		return true
	}
	for _, p := range v.layout {
		if p.item.ID != a.id {
			continue
		}
		delta := clamp(a.delta, 0, max(p.size.Height-1, 0))
		v.offset = clamp(v.total-v.height-(p.top+delta), 0, v.maxOffset())
		return true
	}
	return false
}

// VisibleSections returns the sections with at least one item on screen,
// newest first.
func (v *chatView) VisibleSections() []int {
	var out []int
	for _, idx := range v.visible() {
		s := v.layout[idx].pos.Section
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	// visible() walks oldest to newest.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// visible returns layout indexes of the items overlapping the viewport.
func (v *chatView) visible() []int {
	wt := v.windowTop()
	var out []int
	for i, p := range v.layout {
		if p.size.Height == 0 || p.top+p.size.Height <= wt {
			continue
		}
		if p.top >= wt+v.height {
			break
		}
		out = append(out, i)
	}
	return out
}

func (v *chatView) ScrollUp(n int) {
	v.offset = clamp(v.offset+n, 0, v.maxOffset())
}

func (v *chatView) ScrollDown(n int) {
	v.offset = clamp(v.offset-n, 0, v.maxOffset())
}

func (v *chatView) GotoTop() {
	v.offset = v.maxOffset()
}

func (v *chatView) GotoBottom() {
	v.offset = 0
}

// AtBottom reports whether the newest message is in view.
func (v *chatView) AtBottom() bool {
	return v.offset == 0
}

// Selected returns the selected item, if it is still in the list.
func (v *chatView) Selected() (placedItem, bool) {
	if idx := v.indexOf(v.selected); idx >= 0 {
		return v.layout[idx], true
	}
	return placedItem{}, false
}

// ClearSelection drops the selection.
func (v *chatView) ClearSelection() {
	v.selected = ""
}

// MoveSelection moves the selection by delta selectable items, newest is
// down. Without a selection it starts from the newest visible item.
func (v *chatView) MoveSelection(delta int) {
	cur := v.indexOf(v.selected)
	if cur < 0 {
		vis := v.visible()
		for i := len(vis) - 1; i >= 0; i-- {
			if selectable(v.layout[vis[i]].item) {
				v.selectIndex(vis[i])
				return
			}
		}
		return
	}
	step := 1
	if delta < 0 {
		step, delta = -1, -delta
	}
	for i := cur + step; i >= 0 && i < len(v.layout) && delta > 0; i += step {
		if selectable(v.layout[i].item) {
			cur = i
			delta--
		}
	}
	v.selectIndex(cur)
}

// Select selects the item with the given identity and scrolls it into view.
func (v *chatView) Select(id ItemID) bool {
	idx := v.indexOf(id)
	if idx < 0 {
		return false
	}
	v.selectIndex(idx)
	return true
}

func (v *chatView) selectIndex(idx int) {
	v.selected = v.layout[idx].item.ID
	v.ensureVisible(idx)
}

// ensureVisible scrolls the minimum amount to bring the item fully into view,
// showing its first line when it is taller than the viewport.
func (v *chatView) ensureVisible(idx int) {
	p := v.layout[idx]
	wt := v.windowTop()
	switch {
	case p.top < wt || p.size.Height > v.height:
		v.offset = clamp(v.total-v.height-p.top, 0, v.maxOffset())
	case p.top+p.size.Height > wt+v.height:
		v.offset = clamp(v.total-(p.top+p.size.Height), 0, v.maxOffset())
	}
}

func (v *chatView) indexOf(id ItemID) int {
	if id == "" {
		return -1
	}
	for i, p := range v.layout {
		if p.item.ID == id {
			return i
		}
	}
	return -1
}

// SelectedRect returns the selected item's rectangle relative to the top
// left corner of the list area.
func (v *chatView) SelectedRect() (Rect, bool) {
	p, ok := v.Selected()
	if !ok {
		return Rect{}, false
	}
	return Rect{
		X:      v.insets / 2,
		Y:      p.top - v.windowTop() + v.padTop(),
		Width:  p.size.Width,
		Height: p.size.Height,
	}, true
}

// ItemAtRow returns the selectable item drawn on a viewport row.
func (v *chatView) ItemAtRow(row int) (ItemID, bool) {
	if row < 0 || row >= v.height {
		return "", false
	}
	y := row - v.padTop() + v.windowTop()
	for _, p := range v.layout {
		if y >= p.top && y < p.top+p.size.Height {
			return p.item.ID, selectable(p.item)
		}
	}
	return "", false
}

// Search selects the loaded item best matching query. Matching is fuzzy
// over author, text and URL.
func (v *chatView) Search(query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}
	var data []string
	var idxs []int
	for i, p := range v.layout {
		if !selectable(p.item) {
			continue
		}
		data = append(data, p.item.Message.Author+" "+p.item.Text+" "+p.item.URL)
		idxs = append(idxs, i)
	}
	matches := fuzzy.Find(query, data)
	if len(matches) == 0 {
		return false
	}
	v.selectIndex(idxs[matches[0].Index])
	return true
}

// padTop is the number of blank rows above content shorter than the viewport.
func (v *chatView) padTop() int {
	return max(v.height-v.total, 0)
}

// View renders the visible rows. Content shorter than the viewport sits at
// the bottom, like a chat transcript.
func (v *chatView) View() string {
	if v.height == 0 {
		return ""
	}
	wt := v.windowTop()
	lines := make([]string, 0, v.height)
	for i := 0; i < v.padTop(); i++ {
		lines = append(lines, "")
	}
	left := v.insets / 2
	for _, idx := range v.visible() {
		p := v.layout[idx]
		cell := fitLines(strings.Split(v.sizer.Render(p.item, v.insets, v.width), "\n"), p.size.Height)
		sel := p.item.ID == v.selected
		for i, l := range cell {
			y := p.top + i
			if y < wt || y >= wt+v.height {
				continue
			}
			lines = append(lines, gutter(left, sel)+l)
		}
	}
	return strings.Join(lines, "\n")
}

// fitLines pads or truncates rendered lines to the measured height.
func fitLines(lines []string, height int) []string {
	if len(lines) > height {
		return lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return lines
}

func gutter(width int, selected bool) string {
	if width == 0 {
		return ""
	}
	if selected {
		return selectionMarkerStyle.Render("▌") + strings.Repeat(" ", width-1)
	}
	return strings.Repeat(" ", width)
}

// selectable reports whether an item can carry the selection.
func selectable(it Item) bool {
	return it.Kind != KindDateSeparator && it.Kind != KindUnknown
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
