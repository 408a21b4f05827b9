package newsmap_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/region-news-map/internal/geo"
	"github.com/DeafMist/region-news-map/internal/mapview"
	"github.com/DeafMist/region-news-map/internal/models"
	"github.com/DeafMist/region-news-map/internal/newsmap"
)

type searchCall struct {
	region   string
	category string
}

type stubSearcher struct {
	mu    sync.Mutex
	calls []searchCall
	fn    func(ctx context.Context, call int) (*models.SearchResponse, error)
}

func (s *stubSearcher) SearchNews(ctx context.Context, region, category string) (*models.SearchResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, searchCall{region: region, category: category})
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(ctx, n)
}

func (s *stubSearcher) Calls() []searchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]searchCall(nil), s.calls...)
}

func respond(res *models.SearchResponse) *stubSearcher {
	return &stubSearcher{fn: func(context.Context, int) (*models.SearchResponse, error) { return res, nil }}
}

// recordingProvider remembers the last map it created and can fail marker creation.
type recordingProvider struct {
	*mapview.Memory
	last        mapview.Map
	failAfter   int
	markersMade int
}

func newProvider() *recordingProvider {
	return &recordingProvider{Memory: mapview.NewMemory(), failAfter: -1}
}

func (p *recordingProvider) NewMap(id string, center geo.LatLng, zoom int) (mapview.Map, error) {
	m, err := p.Memory.NewMap(id, center, zoom)
	p.last = m
	return m, err
}

func (p *recordingProvider) NewMarker(pos geo.LatLng, m mapview.Map) (mapview.Marker, error) {
	if p.failAfter >= 0 && p.markersMade >= p.failAfter {
		return nil, errors.New("widget exploded")
	}
	p.markersMade++
	return p.Memory.NewMarker(pos, m)
}

func (p *recordingProvider) attached() int {
	return len(p.Attached(p.last))
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Notify(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func twoArticles() *models.SearchResponse {
	return &models.SearchResponse{News: []models.Article{
		{Title: "Has Coords", Description: "desc", Link: "https://news.example/1", Lat: "37.1", Lng: "127.1"},
		{Title: "No Coords", Link: "https://news.example/2"},
	}}
}

func mountedPage(t *testing.T, s newsmap.Searcher) (*newsmap.Page, *recordingProvider, *notices) {
	t.Helper()
	prov := newProvider()
	n := &notices{}
	page := newsmap.New(prov, s, newsmap.WithNotifier(n))
	require.NoError(t, page.Mount())
	return page, prov, n
}

func selectBoth(t *testing.T, page *newsmap.Page) {
	t.Helper()
	require.NoError(t, page.ToggleRegion("서울특별시", true))
	require.NoError(t, page.ToggleCategory("employment", true))
}

func TestMountUsesDefaultView(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(twoArticles()))

	require.Equal(t, "map", prov.last.ContainerID())
	require.Equal(t, newsmap.DefaultCenter, prov.last.Center())
	require.Equal(t, 7, prov.last.Zoom())
	require.Equal(t, newsmap.StatusIdle, page.Status())

	v := page.View()
	require.Equal(t, newsmap.EmptyPrompt, v.Prompt)
	require.Empty(t, v.News)
	require.Len(t, v.Regions, 17)
	require.Len(t, v.Categories, 3)
}

func TestOptionsOverrideView(t *testing.T) {
	prov := newProvider()
	busan := geo.LatLng{Lat: 35.1796, Lng: 129.0756}
	page := newsmap.New(prov, respond(twoArticles()),
		newsmap.WithContainerID("news-map"),
		newsmap.WithInitialView(busan, 9),
		newsmap.WithFocusZoom(14),
	)

	v := page.View()
	require.Equal(t, "news-map", v.Map.ContainerID)
	require.Equal(t, busan, v.Map.Center)
	require.Equal(t, 9, v.Map.Zoom)

	require.NoError(t, page.Mount())
	require.Equal(t, "news-map", prov.last.ContainerID())
	require.Equal(t, busan, prov.last.Center())
	require.Equal(t, 9, prov.last.Zoom())

	selectBoth(t, page)
	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, geo.LatLng{Lat: 37.1, Lng: 127.1}, prov.last.Center())
	require.Equal(t, 14, prov.last.Zoom())
}

func TestSearchWithoutRegionNeverRequests(t *testing.T) {
	searcher := respond(twoArticles())
	page, _, n := mountedPage(t, searcher)

	require.NoError(t, page.ToggleCategory("festivals", true))
	require.NoError(t, page.ToggleRegion("부산광역시", true))
	require.NoError(t, page.ToggleRegion("부산광역시", false))

	err := page.Search(context.Background())
	require.ErrorIs(t, err, newsmap.ErrNoRegion)
	require.Empty(t, searcher.Calls())
	require.Equal(t, []string{newsmap.MsgSelectRegion}, n.all())
	require.Equal(t, newsmap.StatusIdle, page.Status())
}

func TestSearchWithoutCategoryNeverRequests(t *testing.T) {
	searcher := respond(twoArticles())
	page, _, n := mountedPage(t, searcher)

	require.NoError(t, page.ToggleRegion("경기도", true))

	err := page.Search(context.Background())
	require.ErrorIs(t, err, newsmap.ErrNoCategory)
	require.Empty(t, searcher.Calls())
	require.Equal(t, []string{newsmap.MsgSelectCategory}, n.all())
}

func TestSearchPlacesOnlyCoordinateArticles(t *testing.T) {
	searcher := respond(twoArticles())
	page, prov, n := mountedPage(t, searcher)
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))

	require.Equal(t, []searchCall{{region: "서울특별시", category: "employment"}}, searcher.Calls())
	require.Equal(t, 1, prov.attached())
	require.Empty(t, n.all())
	require.Equal(t, newsmap.StatusPopulated, page.Status())

	require.Equal(t, geo.LatLng{Lat: 37.1, Lng: 127.1}, prov.last.Center())
	require.Equal(t, newsmap.DefaultFocusZoom, prov.last.Zoom())

	v := page.View()
	require.Len(t, v.News, 2)
	require.Equal(t, "No Coords", v.News[1].Title)
	require.Len(t, v.Map.Markers, 1)
	require.Contains(t, v.Map.Markers[0].Popup, "Has Coords")
	require.Empty(t, v.Prompt)
}

func TestSearchSkipsMalformedCoordinates(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(&models.SearchResponse{News: []models.Article{
		{Title: "bad lat", Lat: "north", Lng: "127.1"},
		{Title: "only lat", Lat: "37.0"},
		{Title: "good", Lat: "35.1", Lng: "129.0"},
	}}))
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, 1, prov.attached())
	require.Equal(t, geo.LatLng{Lat: 35.1, Lng: 129.0}, prov.last.Center())
	require.Len(t, page.View().News, 3)
}

func TestSearchWithNoPlaceableArticlesKeepsCenter(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(&models.SearchResponse{News: []models.Article{{Title: "No Coords"}}}))
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	require.Zero(t, prov.attached())
	require.Equal(t, newsmap.DefaultCenter, prov.last.Center())
	require.Equal(t, newsmap.DefaultZoom, prov.last.Zoom())
}

func TestEndpointErrorLeavesResultsAlone(t *testing.T) {
	searcher := &stubSearcher{fn: func(_ context.Context, call int) (*models.SearchResponse, error) {
		if call == 1 {
			return twoArticles(), nil
		}
		return &models.SearchResponse{Error: "no results"}, nil
	}}
	page, prov, n := mountedPage(t, searcher)
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	before := page.View()

	err := page.Search(context.Background())
	var endpointErr *newsmap.EndpointError
	require.ErrorAs(t, err, &endpointErr)
	require.Equal(t, "no results", endpointErr.Message)
	require.Equal(t, []string{"no results"}, n.all())

	require.Equal(t, 1, prov.attached())
	after := page.View()
	require.Equal(t, before.News, after.News)
	require.Equal(t, before.Map.Markers, after.Map.Markers)
	require.Equal(t, newsmap.StatusErrored, page.Status())
}

func TestTransportErrorShowsGenericMessage(t *testing.T) {
	searcher := &stubSearcher{fn: func(_ context.Context, call int) (*models.SearchResponse, error) {
		if call == 1 {
			return twoArticles(), nil
		}
		return nil, errors.New("connection refused")
	}}
	page, prov, n := mountedPage(t, searcher)
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	err := page.Search(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, []string{newsmap.MsgFetchFailed}, n.all())
	require.Equal(t, 1, prov.attached())
	require.Len(t, page.View().News, 2)
}

func TestMarkerFailureClearsMapButKeepsList(t *testing.T) {
	searcher := &stubSearcher{fn: func(_ context.Context, call int) (*models.SearchResponse, error) {
		if call == 1 {
			return twoArticles(), nil
		}
		return &models.SearchResponse{News: []models.Article{
			{Title: "first", Lat: "36.0", Lng: "127.0"},
			{Title: "second", Lat: "36.1", Lng: "127.1"},
			{Title: "third", Lat: "36.2", Lng: "127.2"},
		}}, nil
	}}
	page, prov, n := mountedPage(t, searcher)
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, 1, prov.attached())

	prov.failAfter = prov.markersMade + 2
	err := page.Search(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "third")

	require.Zero(t, prov.attached(), "old markers are gone and the partial batch was rolled back")
	require.Equal(t, []string{newsmap.MsgFetchFailed}, n.all())
	v := page.View()
	require.Len(t, v.News, 2, "news list keeps the previous results")
	require.Empty(t, v.Map.Markers)
	require.Equal(t, newsmap.StatusErrored, page.Status())
}

func TestRepeatedSearchReplacesMarkers(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(&models.SearchResponse{News: []models.Article{
		{Title: "a", Lat: "37.1", Lng: "127.1"},
		{Title: "b", Lat: "37.2", Lng: "127.2"},
		{Title: "c"},
	}}))
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, 2, prov.attached())
	require.Len(t, page.View().Map.Markers, 2)
}

func TestUnmountDetachesEveryMarker(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(&models.SearchResponse{News: []models.Article{
		{Title: "a", Lat: "37.1", Lng: "127.1"},
		{Title: "b", Lat: "37.2", Lng: "127.2"},
	}}))
	selectBoth(t, page)

	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, 2, prov.attached())

	page.Unmount()
	require.Zero(t, prov.attached())
	require.ErrorIs(t, page.Search(context.Background()), newsmap.ErrNotMounted)
}

func TestMissingDescriptionUsesPlaceholder(t *testing.T) {
	page, _, _ := mountedPage(t, respond(twoArticles()))
	selectBoth(t, page)
	require.NoError(t, page.Search(context.Background()))

	news := page.View().News
	require.Equal(t, "desc", news[0].Description)
	require.Equal(t, newsmap.DescriptionFallback, news[1].Description)
}

func TestFirstToggledRegionWins(t *testing.T) {
	searcher := respond(twoArticles())
	page, _, _ := mountedPage(t, searcher)

	require.NoError(t, page.ToggleRegion("제주특별자치도", true))
	require.NoError(t, page.ToggleRegion("서울특별시", true))
	require.NoError(t, page.ToggleCategory("festivals", true))
	require.NoError(t, page.ToggleCategory("employment", true))

	require.NoError(t, page.Search(context.Background()))
	require.Equal(t, []searchCall{{region: "제주특별자치도", category: "employment"}}, searcher.Calls())
}

func TestToggleRejectsUnknownNames(t *testing.T) {
	page, _, _ := mountedPage(t, respond(twoArticles()))
	require.ErrorIs(t, page.ToggleRegion("Atlantis", true), newsmap.ErrUnknownOption)
	require.ErrorIs(t, page.ToggleCategory("sports", true), newsmap.ErrUnknownOption)
}

func TestClickOpensArticlePopup(t *testing.T) {
	page, prov, _ := mountedPage(t, respond(twoArticles()))
	selectBoth(t, page)
	require.NoError(t, page.Search(context.Background()))

	markers := prov.Attached(prov.last)
	require.Len(t, markers, 1)
	prov.Click(markers[0])

	win, anchor, open := prov.OpenWindow(prov.last)
	require.True(t, open)
	require.Equal(t, markers[0].ID(), anchor.ID())
	require.Contains(t, win.Content(), "<h4>Has Coords</h4>")
	require.Contains(t, win.Content(), `href="https://news.example/1"`)
	require.Contains(t, win.Content(), newsmap.PopupLinkLabel)
}

func TestSupersededSearchIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	searcher := &stubSearcher{fn: func(_ context.Context, call int) (*models.SearchResponse, error) {
		if call == 1 {
			close(started)
			<-release
			return &models.SearchResponse{News: []models.Article{
				{Title: "old-1", Lat: "35.0", Lng: "129.0"},
				{Title: "old-2", Lat: "35.1", Lng: "129.1"},
			}}, nil
		}
		return twoArticles(), nil
	}}
	page, prov, n := mountedPage(t, searcher)
	selectBoth(t, page)

	firstErr := make(chan error, 1)
	go func() { firstErr <- page.Search(context.Background()) }()
	<-started

	require.NoError(t, page.Search(context.Background()))
	close(release)
	require.ErrorIs(t, <-firstErr, newsmap.ErrStale)

	require.Equal(t, 1, prov.attached())
	v := page.View()
	require.Equal(t, "Has Coords", v.News[0].Title)
	require.Empty(t, n.all())
	require.Equal(t, newsmap.StatusPopulated, page.Status())
}

func TestNewSearchCancelsInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	searcher := &stubSearcher{fn: func(ctx context.Context, call int) (*models.SearchResponse, error) {
		if call == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return twoArticles(), nil
	}}
	page, _, n := mountedPage(t, searcher)
	selectBoth(t, page)

	firstErr := make(chan error, 1)
	go func() { firstErr <- page.Search(context.Background()) }()
	<-started

	require.NoError(t, page.Search(context.Background()))
	require.ErrorIs(t, <-firstErr, newsmap.ErrStale)
	require.Empty(t, n.all(), "a cancelled search does not notify")
}

func TestUnmountDiscardsInFlightSearch(t *testing.T) {
	started := make(chan struct{})
	searcher := &stubSearcher{fn: func(ctx context.Context, _ int) (*models.SearchResponse, error) {
		close(started)
		<-ctx.Done()
		return twoArticles(), nil
	}}
	page, prov, _ := mountedPage(t, searcher)
	selectBoth(t, page)

	done := make(chan error, 1)
	go func() { done <- page.Search(context.Background()) }()
	<-started
	require.Equal(t, newsmap.StatusSearching, page.Status())

	page.Unmount()
	require.Equal(t, newsmap.StatusIdle, page.Status())
	require.ErrorIs(t, <-done, newsmap.ErrStale)
	require.Equal(t, newsmap.StatusIdle, page.Status())
	require.Zero(t, prov.attached())
	require.Empty(t, page.View().News)
}
