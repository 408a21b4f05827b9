// Package mapview describes the map widget the news page draws on.
//
// Provider mirrors the calls a browser map SDK offers: create a map bound to a
// container, drop markers on it, build info windows and wire marker clicks.
// Memory is an in-process implementation; the web layer serialises its state
// for the browser-side SDK to draw.
package mapview

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/DeafMist/region-news-map/internal/geo"
)

var (
	// ErrNoMap is returned when a marker is created without a target map.
	ErrNoMap = errors.New("marker needs a map")
	// ErrForeignMap is returned when a map handle was not created by this provider.
	ErrForeignMap = errors.New("map belongs to another provider")
)

// Provider creates maps, markers and info windows.
type Provider interface {
	NewMap(containerID string, center geo.LatLng, zoom int) (Map, error)
	NewMarker(pos geo.LatLng, m Map) (Marker, error)
	NewInfoWindow(content string) InfoWindow
	AddClickListener(mk Marker, fn func())
}

// Map is a rendered map surface.
type Map interface {
	ContainerID() string
	Center() geo.LatLng
	SetCenter(geo.LatLng)
	Zoom() int
	SetZoom(int)
}

// Marker is a pin placed on a map. SetMap(nil) detaches it.
type Marker interface {
	ID() string
	Position() geo.LatLng
	Map() Map
	SetMap(Map)
}

// InfoWindow is a popup anchored to a marker.
type InfoWindow interface {
	Content() string
	Open(m Map, anchor Marker)
	Close()
}

// Memory keeps maps and markers in process memory. It is safe for concurrent use.
// Every NewMap call returns an independent surface, so many pages may share one
// container id.
type Memory struct {
	mu sync.Mutex
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMap creates a fresh map labelled containerID.
func (p *Memory) NewMap(containerID string, center geo.LatLng, zoom int) (Map, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("map center: %w", err)
	}
	return &memoryMap{provider: p, id: containerID, center: center, zoom: zoom}, nil
}

// NewMarker places a marker at pos on m.
func (p *Memory) NewMarker(pos geo.LatLng, m Map) (Marker, error) {
	if m == nil {
		return nil, ErrNoMap
	}
	mm, ok := m.(*memoryMap)
	if !ok || mm.provider != p {
		return nil, ErrForeignMap
	}
	if err := pos.Validate(); err != nil {
		return nil, fmt.Errorf("marker position: %w", err)
	}

	mk := &memoryMarker{provider: p, id: uuid.NewString(), pos: pos}
	mk.SetMap(m)
	return mk, nil
}

// NewInfoWindow builds a popup holding content.
func (p *Memory) NewInfoWindow(content string) InfoWindow {
	return &memoryInfoWindow{provider: p, content: content}
}

// AddClickListener registers fn to run when mk is clicked.
func (p *Memory) AddClickListener(mk Marker, fn func()) {
	m, ok := mk.(*memoryMarker)
	if !ok || fn == nil {
		return
	}
	p.mu.Lock()
	m.listeners = append(m.listeners, fn)
	p.mu.Unlock()
}

// Click simulates a user click on mk and runs its listeners.
func (p *Memory) Click(mk Marker) {
	m, ok := mk.(*memoryMarker)
	if !ok {
		return
	}
	p.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Attached returns the markers currently on m, in attach order.
func (p *Memory) Attached(m Map) []Marker {
	mm, ok := m.(*memoryMap)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Marker, 0, len(mm.markers))
	for _, mk := range mm.markers {
		out = append(out, mk)
	}
	return out
}

// OpenWindow returns the popup currently open on m and its anchor, if any.
func (p *Memory) OpenWindow(m Map) (InfoWindow, Marker, bool) {
	mm, ok := m.(*memoryMap)
	if !ok {
		return nil, nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if mm.open == nil {
		return nil, nil, false
	}
	return mm.open, mm.openAnchor, true
}

type memoryMap struct {
	provider   *Memory
	id         string
	center     geo.LatLng
	zoom       int
	markers    []*memoryMarker
	open       *memoryInfoWindow
	openAnchor *memoryMarker
}

func (m *memoryMap) ContainerID() string { return m.id }

func (m *memoryMap) Center() geo.LatLng {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	return m.center
}

func (m *memoryMap) SetCenter(c geo.LatLng) {
	m.provider.mu.Lock()
	m.center = c
	m.provider.mu.Unlock()
}

func (m *memoryMap) Zoom() int {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	return m.zoom
}

func (m *memoryMap) SetZoom(z int) {
	m.provider.mu.Lock()
	m.zoom = z
	m.provider.mu.Unlock()
}

// detach must be called with the provider lock held.
func (m *memoryMap) detach(mk *memoryMarker) {
	for i, cur := range m.markers {
		if cur == mk {
			m.markers = append(m.markers[:i], m.markers[i+1:]...)
			break
		}
	}
	if m.openAnchor == mk {
		m.open, m.openAnchor = nil, nil
	}
}

type memoryMarker struct {
	provider  *Memory
	id        string
	pos       geo.LatLng
	on        *memoryMap
	listeners []func()
}

func (mk *memoryMarker) ID() string           { return mk.id }
func (mk *memoryMarker) Position() geo.LatLng { return mk.pos }

func (mk *memoryMarker) Map() Map {
	mk.provider.mu.Lock()
	defer mk.provider.mu.Unlock()
	if mk.on == nil {
		return nil
	}
	return mk.on
}

// SetMap moves the marker onto m; nil (or a map from another provider) detaches it.
func (mk *memoryMarker) SetMap(m Map) {
	target, _ := m.(*memoryMap)
	if target != nil && target.provider != mk.provider {
		target = nil
	}

	mk.provider.mu.Lock()
	defer mk.provider.mu.Unlock()

	if mk.on == target {
		return
	}
	if mk.on != nil {
		mk.on.detach(mk)
	}
	mk.on = target
	if target != nil {
		target.markers = append(target.markers, mk)
	}
}

type memoryInfoWindow struct {
	provider *Memory
	content  string
	on       *memoryMap
}

func (w *memoryInfoWindow) Content() string { return w.content }

// Open shows the popup on m anchored at anchor, replacing any popup already open there.
// Opening on a detached marker is a no-op.
func (w *memoryInfoWindow) Open(m Map, anchor Marker) {
	mm, ok := m.(*memoryMap)
	if !ok {
		return
	}
	mk, _ := anchor.(*memoryMarker)

	w.provider.mu.Lock()
	defer w.provider.mu.Unlock()

	if mk != nil && mk.on != mm {
		return
	}
	if w.on != nil && w.on != mm && w.on.open == w {
		w.on.open, w.on.openAnchor = nil, nil
	}
	mm.open, mm.openAnchor = w, mk
	w.on = mm
}

func (w *memoryInfoWindow) Close() {
	w.provider.mu.Lock()
	defer w.provider.mu.Unlock()

	if w.on != nil && w.on.open == w {
		w.on.open, w.on.openAnchor = nil, nil
	}
	w.on = nil
}
