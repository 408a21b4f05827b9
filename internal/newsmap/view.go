package newsmap

import (
	"html"
	"net/url"
	"strings"

	"github.com/DeafMist/region-news-map/internal/catalog"
	"github.com/DeafMist/region-news-map/internal/geo"
	"github.com/DeafMist/region-news-map/internal/models"
)

// View is everything needed to draw the page.
type View struct {
	Regions    []Checkbox `json:"regions"`
	Categories []Checkbox `json:"categories"`
	Map        MapView    `json:"map"`
	News       []NewsItem `json:"news"`
	Prompt     string     `json:"prompt,omitempty"`
	Status     Status     `json:"status"`
}

// Checkbox is one selectable option.
type Checkbox struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// MapView is the map surface and the markers attached to it.
type MapView struct {
	ContainerID string       `json:"containerId"`
	Center      geo.LatLng   `json:"center"`
	Zoom        int          `json:"zoom"`
	Markers     []MarkerView `json:"markers"`
}

// MarkerView is one attached marker and the popup it opens.
type MarkerView struct {
	ID       string     `json:"id"`
	Position geo.LatLng `json:"position"`
	Popup    string     `json:"popup"`
}

// NewsItem is one side-panel entry.
type NewsItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// View renders the current state. The news list holds every returned article,
// including those that could not be placed on the map.
func (p *Page) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{Status: p.status}

	for _, name := range catalog.RegionNames() {
		v.Regions = append(v.Regions, Checkbox{Name: name, Label: name, Checked: p.regions.Checked(name)})
	}
	for _, c := range catalog.Categories() {
		v.Categories = append(v.Categories, Checkbox{Name: c.Key, Label: c.Label, Checked: p.categories.Checked(c.Key)})
	}

	v.Map = MapView{ContainerID: p.containerID, Center: p.center, Zoom: p.zoom, Markers: []MarkerView{}}
	if p.m != nil {
		v.Map.Center = p.m.Center()
		v.Map.Zoom = p.m.Zoom()
	}

	for _, pm := range p.markers {
		if pm.marker.Map() == nil {
			continue
		}
		v.Map.Markers = append(v.Map.Markers, MarkerView{
			ID:       pm.marker.ID(),
			Position: pm.marker.Position(),
			Popup:    pm.popup,
		})
	}

	v.News = make([]NewsItem, 0, len(p.news))
	for _, a := range p.news {
		v.News = append(v.News, NewsItem{
			Title:       a.Title,
			Link:        SafeLink(a.Link),
			Description: DescriptionOrFallback(a),
		})
	}
	if len(v.News) == 0 {
		v.Prompt = EmptyPrompt
	}
	return v
}

// DescriptionOrFallback returns the article summary or the placeholder text.
func DescriptionOrFallback(a models.Article) string {
	if d := strings.TrimSpace(a.Description); d != "" {
		return d
	}
	return DescriptionFallback
}

// SafeLink passes http(s) URLs through and turns anything else into "#".
func SafeLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "#"
	}
	return u.String()
}

// PopupHTML is the info window markup for an article, with every field escaped.
func PopupHTML(a models.Article) string {
	var b strings.Builder
	b.WriteString(`<div style="padding:10px;"><h4>`)
	b.WriteString(html.EscapeString(a.Title))
	b.WriteString(`</h4><p>`)
	b.WriteString(html.EscapeString(DescriptionOrFallback(a)))
	b.WriteString(`</p><a href="`)
	b.WriteString(html.EscapeString(SafeLink(a.Link)))
	b.WriteString(`" target="_blank" rel="noopener noreferrer">`)
	b.WriteString(PopupLinkLabel)
	b.WriteString(`</a></div>`)
	return b.String()
}
