// Package overlay turns remote cursor and selection events into positioned,
// labeled markers over the local editor surface. It is a pure consumer: it
// never talks to the network, it only measures text against a replica of
// the editor's font metrics.
package overlay

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/ws"
)

// Metrics is the off-screen replica of the editor's rendering parameters.
// The editor surface is monospace, so a character column maps to a fixed
// horizontal advance.
type Metrics struct {
	CharWidth  float64
	LineHeight float64
	PaddingX   float64
	PaddingY   float64
}

// Point is a pixel position relative to the editor surface's origin.
type Point struct {
	X float64
	Y float64
}

// RemoteCursor is the latest known caret of one remote user.
type RemoteCursor struct {
	UserID   string
	UserName string
	Position int
	Color    string
}

// RemoteSelection is the latest known selected range of one remote user.
type RemoteSelection struct {
	UserID   string
	UserName string
	Start    int
	End      int
	Color    string
}

// CursorMarker is a rendered remote caret.
type CursorMarker struct {
	UserID string
	Label  string
	Color  string
	At     Point
}

// SelectionRegion is a rendered remote selection, as its two endpoint
// positions; the UI fills the rectangles in between.
type SelectionRegion struct {
	UserID string
	Label  string
	Color  string
	From   Point
	To     Point
}

// palette holds the colors assigned to remote users. Assignment is a
// stable hash of the user id, so a user keeps their color across sessions
// and across every peer's screen.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080",
}

// ColorFor returns the display color for a user id.
func ColorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Overlay tracks remote presence for one editor instance. One entry per
// user, replaced wholesale on every event; entries disappear only when the
// server reports the owning session gone.
type Overlay struct {
	mu         sync.Mutex
	metrics    Metrics
	width      float64
	content    string
	cursors    map[string]RemoteCursor
	selections map[string]RemoteSelection
}

func New(metrics Metrics, width float64) *Overlay {
	return &Overlay{
		metrics:    metrics,
		width:      width,
		cursors:    make(map[string]RemoteCursor),
		selections: make(map[string]RemoteSelection),
	}
}

// SetContent updates the authoritative text buffer markers are measured
// against.
func (o *Overlay) SetContent(content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.content = content
}

// Resize records new surface dimensions. Viewport resizes and orientation
// changes both land here; markers are re-measured on the next render.
func (o *Overlay) Resize(width float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.width = width
}

// ApplyCursor replaces the user's cursor entry with the event's position.
func (o *Overlay) ApplyCursor(ev ws.CursorInfo) {
	if ev.UserID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursors[ev.UserID] = RemoteCursor{
		UserID:   ev.UserID,
		UserName: ev.UserName,
		Position: ev.Position,
		Color:    ColorFor(ev.UserID),
	}
}

// ApplySelection replaces the user's selection entry with the event's range.
func (o *Overlay) ApplySelection(ev ws.SelectionInfo) {
	if ev.UserID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selections[ev.UserID] = RemoteSelection{
		UserID:   ev.UserID,
		UserName: ev.UserName,
		Start:    ev.Start,
		End:      ev.End,
		Color:    ColorFor(ev.UserID),
	}
}

// RemovePeer purges all presence for a user whose session the server
// reported gone.
func (o *Overlay) RemovePeer(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cursors, userID)
	delete(o.selections, userID)
}

// CursorMarkers measures every known remote cursor against the current
// buffer and metrics. An unmounted surface (zero metrics or width) renders
// nothing.
func (o *Overlay) CursorMarkers() []CursorMarker {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted() {
		return nil
	}
	markers := make([]CursorMarker, 0, len(o.cursors))
	for _, cur := range o.cursors {
		markers = append(markers, CursorMarker{
			UserID: cur.UserID,
			Label:  label(cur.UserName, cur.UserID),
			Color:  cur.Color,
			At:     o.measure(cur.Position),
		})
	}
	return markers
}

// SelectionRegions measures every known remote selection.
func (o *Overlay) SelectionRegions() []SelectionRegion {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted() {
		return nil
	}
	regions := make([]SelectionRegion, 0, len(o.selections))
	for _, sel := range o.selections {
		start, end := sel.Start, sel.End
		if end < start {
			start, end = end, start
		}
		regions = append(regions, SelectionRegion{
			UserID: sel.UserID,
			Label:  label(sel.UserName, sel.UserID),
			Color:  sel.Color,
			From:   o.measure(start),
			To:     o.measure(end),
		})
	}
	return regions
}

func (o *Overlay) mounted() bool {
	return o.metrics.CharWidth > 0 && o.metrics.LineHeight > 0 && o.width > 0
}

// wrapColumns is how many characters fit on one visual line at the current
// surface width. At least one, so measurement always terminates.
func (o *Overlay) wrapColumns() int {
	cols := int((o.width - 2*o.metrics.PaddingX) / o.metrics.CharWidth)
	if cols < 1 {
		cols = 1
	}
	return cols
}

// measure walks the buffer up to offset, tracking the visual line and
// column under hard newlines and soft wraps, then converts to pixels.
// Offsets beyond the buffer clamp to its end.
func (o *Overlay) measure(offset int) Point {
	runes := []rune(o.content)
	if offset < 0 {
		offset = 0
	}
	if offset > len(runes) {
		offset = len(runes)
	}
	wrap := o.wrapColumns()
	line, col := 0, 0
	for _, r := range runes[:offset] {
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col++
		if col == wrap {
			line++
			col = 0
		}
	}
	return Point{
		X: o.metrics.PaddingX + float64(col)*o.metrics.CharWidth,
		Y: o.metrics.PaddingY + float64(line)*o.metrics.LineHeight,
	}
}

func label(userName, userID string) string {
	if name := strings.TrimSpace(userName); name != "" {
		return name
	}
	return userID
}
