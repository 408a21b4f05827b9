// Package newsmap is the region news map page: checkbox selection, the search
// trigger, projection of results onto map markers, and the rendered view.
package newsmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DeafMist/region-news-map/internal/catalog"
	"github.com/DeafMist/region-news-map/internal/geo"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/mapview"
	"github.com/DeafMist/region-news-map/internal/models"
)

// User-facing text.
const (
	MsgSelectRegion     = "도(지역)를 하나 선택해주세요."
	MsgSelectCategory   = "카테고리를 하나 선택해주세요."
	MsgFetchFailed      = "뉴스를 가져오는 중 오류가 발생했습니다."
	DescriptionFallback = "요약문을 가져올 수 없습니다."
	EmptyPrompt         = "선택한 지역과 카테고리의 뉴스를 검색해 주세요."
	PopupLinkLabel      = "기사 보기"
)

// Map defaults: roughly the middle of the peninsula, zoomed out to show it whole.
const (
	DefaultContainerID = "map"
	DefaultZoom        = 7
	DefaultFocusZoom   = 10
)

// DefaultCenter is where the map opens before any search.
var DefaultCenter = geo.LatLng{Lat: 37.4488, Lng: 127.1267}

var (
	ErrNoRegion   = errors.New("no region selected")
	ErrNoCategory = errors.New("no category selected")
	ErrNotMounted = errors.New("map not mounted")
	// ErrStale marks a response that lost to a newer search or to Unmount. Nothing was applied.
	ErrStale = errors.New("stale search response")
)

// EndpointError carries the message the search endpoint reported instead of results.
type EndpointError struct {
	Message string
}

func (e *EndpointError) Error() string {
	return "search endpoint: " + e.Message
}

// Searcher is the remote news search.
type Searcher interface {
	SearchNews(ctx context.Context, region, category string) (*models.SearchResponse, error)
}

// Notifier shows a blocking message to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Option customises a Page.
type Option func(*Page)

// WithLogger sets the page logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Page) { p.log = log }
}

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) Option {
	return func(p *Page) { p.notifier = n }
}

// WithInitialView overrides the center and zoom the map opens at.
func WithInitialView(center geo.LatLng, zoom int) Option {
	return func(p *Page) { p.center, p.zoom = center, zoom }
}

// WithFocusZoom sets the zoom applied when a search recenters the map.
func WithFocusZoom(zoom int) Option {
	return func(p *Page) { p.focusZoom = zoom }
}

// WithContainerID sets the map container id.
func WithContainerID(id string) Option {
	return func(p *Page) { p.containerID = id }
}

// Page holds one user's map page. It is safe for concurrent use; the lock is not
// held while a search request is in flight.
type Page struct {
	provider mapview.Provider
	searcher Searcher
	notifier Notifier
	log      *slog.Logger

	containerID string
	center      geo.LatLng
	zoom        int
	focusZoom   int

	mu         sync.Mutex
	regions    *Selection
	categories *Selection
	m          mapview.Map
	markers    []placedMarker
	news       []models.Article
	status     Status
	seq        uint64
	cancel     context.CancelFunc
}

// New builds an unmounted page.
func New(provider mapview.Provider, searcher Searcher, opts ...Option) *Page {
	p := &Page{
		provider:    provider,
		searcher:    searcher,
		notifier:    NotifierFunc(func(string) {}),
		log:         logger.Discard(),
		containerID: DefaultContainerID,
		center:      DefaultCenter,
		zoom:        DefaultZoom,
		focusZoom:   DefaultFocusZoom,
		regions:     NewSelection(catalog.RegionNames(), false),
		categories:  NewSelection(catalog.CategoryKeys(), true),
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mount creates the map surface at the initial center and zoom. Mounting twice is a no-op.
func (p *Page) Mount() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.m != nil {
		return nil
	}
	m, err := p.provider.NewMap(p.containerID, p.center, p.zoom)
	if err != nil {
		return fmt.Errorf("mount map: %w", err)
	}
	p.m = m
	return nil
}

// Unmount detaches every marker, cancels an in-flight search and discards its result.
func (p *Page) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.detachMarkers()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.seq++
	p.status = StatusIdle
	p.m = nil
}

// ToggleRegion sets one region checkbox.
func (p *Page) ToggleRegion(name string, checked bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions.Set(name, checked)
}

// ToggleCategory sets one category checkbox.
func (p *Page) ToggleCategory(key string, checked bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.categories.Set(key, checked)
}

// Status reports where the page is in its search lifecycle.
func (p *Page) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Search validates the selection, queries the endpoint and replaces markers and list.
//
// A newer Search or an Unmount cancels this one; its response, if it still arrives,
// is dropped and ErrStale returned.
func (p *Page) Search(ctx context.Context) error {
	p.mu.Lock()
	if p.m == nil {
		p.mu.Unlock()
		return ErrNotMounted
	}
	region, ok := p.regions.First()
	if !ok {
		p.mu.Unlock()
		p.notifier.Notify(MsgSelectRegion)
		return ErrNoRegion
	}
	category, ok := p.categories.First()
	if !ok {
		p.mu.Unlock()
		p.notifier.Notify(MsgSelectCategory)
		return ErrNoCategory
	}
	// Only the first checked box of each group is sent; the rest are logged.
	checkedRegions := p.regions.CheckedNames()
	checkedCategories := p.categories.CheckedNames()

	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	token := p.seq
	reqCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.status = StatusSearching
	p.mu.Unlock()
	defer cancel()

	p.log.Debug("search dispatched",
		slog.String("region", region),
		slog.String("category", category),
		slog.Uint64("seq", token),
		slog.Any("checked_regions", checkedRegions),
		slog.Any("checked_categories", checkedCategories),
	)

	res, err := p.searcher.SearchNews(reqCtx, region, category)

	p.mu.Lock()
	msg, err := p.apply(token, res, err)
	p.mu.Unlock()

	if msg != "" {
		p.notifier.Notify(msg)
	}
	return err
}

// apply folds a search outcome into page state and returns the message to show, if any.
// Called with p.mu held.
func (p *Page) apply(token uint64, res *models.SearchResponse, err error) (string, error) {
	if token != p.seq {
		p.log.Debug("dropping stale search response", slog.Uint64("seq", token), slog.Uint64("latest", p.seq))
		return "", ErrStale
	}
	p.cancel = nil

	if err == nil && res == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		p.status = StatusErrored
		p.log.Error("error fetching news", slog.Any("err", err))
		return MsgFetchFailed, fmt.Errorf("search news: %w", err)
	}
	if res.Error != "" {
		p.status = StatusErrored
		p.log.Warn("search endpoint reported error", slog.String("error", res.Error))
		return res.Error, &EndpointError{Message: res.Error}
	}

	p.detachMarkers()

	placed := placeable(res.News)
	if len(placed) > 0 {
		p.m.SetCenter(placed[0].pos)
		p.m.SetZoom(p.focusZoom)
	}

	markers, err := p.placeMarkers(placed)
	if err != nil {
		p.status = StatusErrored
		p.log.Error("error fetching news", slog.Any("err", err))
		return MsgFetchFailed, err
	}

	p.markers = markers
	p.news = append([]models.Article(nil), res.News...)
	p.status = StatusPopulated
	p.log.Info("search applied",
		slog.Int("articles", len(res.News)),
		slog.Int("markers", len(markers)),
	)
	return "", nil
}

type placement struct {
	article models.Article
	pos     geo.LatLng
}

type placedMarker struct {
	marker mapview.Marker
	popup  string
}

// placeable keeps the articles whose coordinates parse, in response order.
func placeable(news []models.Article) []placement {
	out := make([]placement, 0, len(news))
	for _, a := range news {
		pos, err := geo.Parse(a.Lat, a.Lng)
		if err != nil {
			continue
		}
		out = append(out, placement{article: a, pos: pos})
	}
	return out
}

// placeMarkers attaches one marker per placement. On failure the markers it already
// attached are detached again.
func (p *Page) placeMarkers(placed []placement) ([]placedMarker, error) {
	m := p.m
	markers := make([]placedMarker, 0, len(placed))
	for _, pl := range placed {
		mk, err := p.provider.NewMarker(pl.pos, m)
		if err != nil {
			for _, done := range markers {
				done.marker.SetMap(nil)
			}
			return nil, fmt.Errorf("place marker for %q: %w", pl.article.Title, err)
		}

		popup := PopupHTML(pl.article)
		win := p.provider.NewInfoWindow(popup)
		p.provider.AddClickListener(mk, func() { win.Open(m, mk) })
		markers = append(markers, placedMarker{marker: mk, popup: popup})
	}
	return markers, nil
}

// detachMarkers clears every marker this page attached. Called with p.mu held.
func (p *Page) detachMarkers() {
	for _, pm := range p.markers {
		pm.marker.SetMap(nil)
	}
	p.markers = nil
}
