// Package catalog holds the fixed set of regions and news categories the map can be filtered by.
package catalog

import (
	"strings"
)

// Region is one of the province-level administrative areas.
type Region struct {
	Name  string
	Short string
	Lat   float64
	Lng   float64
}

// Category is a news topic the search endpoint understands.
type Category struct {
	Key      string
	Label    string
	Keywords []string
}

// Category keys as sent over the wire.
const (
	Employment         = "employment"
	TouristAttractions = "touristAttractions"
	Festivals          = "festivals"
)

var regions = []Region{
	{Name: "서울특별시", Short: "서울", Lat: 37.5665, Lng: 126.9780},
	{Name: "부산광역시", Short: "부산", Lat: 35.1796, Lng: 129.0756},
	{Name: "대구광역시", Short: "대구", Lat: 35.8714, Lng: 128.6014},
	{Name: "인천광역시", Short: "인천", Lat: 37.4563, Lng: 126.7052},
	{Name: "광주광역시", Short: "광주", Lat: 35.1595, Lng: 126.8526},
	{Name: "대전광역시", Short: "대전", Lat: 36.3504, Lng: 127.3845},
	{Name: "울산광역시", Short: "울산", Lat: 35.5384, Lng: 129.3114},
	{Name: "세종특별자치시", Short: "세종", Lat: 36.4800, Lng: 127.2890},
	{Name: "경기도", Short: "경기", Lat: 37.4138, Lng: 127.5183},
	{Name: "강원도", Short: "강원", Lat: 37.8228, Lng: 128.1555},
	{Name: "충청북도", Short: "충북", Lat: 36.8000, Lng: 127.7000},
	{Name: "충청남도", Short: "충남", Lat: 36.5184, Lng: 126.8000},
	{Name: "전라북도", Short: "전북", Lat: 35.7175, Lng: 127.1530},
	{Name: "전라남도", Short: "전남", Lat: 34.8679, Lng: 126.9910},
	{Name: "경상북도", Short: "경북", Lat: 36.4919, Lng: 128.8889},
	{Name: "경상남도", Short: "경남", Lat: 35.4606, Lng: 128.2132},
	{Name: "제주특별자치도", Short: "제주", Lat: 33.4890, Lng: 126.4983},
}

var categories = []Category{
	{Key: Employment, Label: "취업", Keywords: []string{"채용", "취업", "일자리", "구인", "고용", "공채", "구직"}},
	{Key: TouristAttractions, Label: "관광지", Keywords: []string{"관광", "여행", "명소", "관광지", "둘레길", "해수욕장", "전망대"}},
	{Key: Festivals, Label: "축제", Keywords: []string{"축제", "페스티벌", "불꽃", "공연", "문화제", "박람회"}},
}

// Regions returns the regions in display order. The slice is a copy.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// RegionNames returns the region names in display order.
func RegionNames() []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		out = append(out, r.Name)
	}
	return out
}

// Categories returns the categories in display order. The slice is a copy.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryKeys returns the category keys in display order.
func CategoryKeys() []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.Key)
	}
	return out
}

// LookupRegion finds a region by its full name.
func LookupRegion(name string) (Region, bool) {
	for _, r := range regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// LookupCategory finds a category by key.
func LookupCategory(key string) (Category, bool) {
	for _, c := range categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// DetectRegion returns the first region whose full or short name occurs in text.
// Full names win over short ones so "광주광역시" is not mistaken for a plain "광주" mention elsewhere.
func DetectRegion(text string) (Region, bool) {
	if text == "" {
		return Region{}, false
	}
	for _, r := range regions {
		if strings.Contains(text, r.Name) {
			return r, true
		}
	}
	for _, r := range regions {
		if strings.Contains(text, r.Short) {
			return r, true
		}
	}
	return Region{}, false
}

// ClassifyCategory scores text against each category's keywords and returns the best match.
// Ties go to the category listed first.
func ClassifyCategory(text string) (Category, bool) {
	if text == "" {
		return Category{}, false
	}

	best := -1
	bestScore := 0
	for i, c := range categories {
		score := 0
		for _, kw := range c.Keywords {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Category{}, false
	}
	return categories[best], true
}
