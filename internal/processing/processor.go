package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	nethtml "golang.org/x/net/html"
)

var (
	urlRegex    = regexp.MustCompile(`https?://[^\s"'<>]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// Particles and filler that carry no topic in Korean headlines, plus common English ones.
var stopwords = map[string]struct{}{
	"및": {}, "등": {}, "것": {}, "수": {}, "이": {}, "그": {}, "더": {}, "위해": {},
	"대한": {}, "통해": {}, "관련": {}, "지난": {}, "오는": {}, "기자": {}, "뉴스": {},
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "of": {}, "and": {},
}

// ExtractURLs returns the distinct HTTP(S) URLs in input, in order of appearance.
func ExtractURLs(input string) []string {
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, u := range matches {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// RemoveURLs replaces every URL in input with a single space.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// StripTags drops markup from an HTML fragment and returns its text with whitespace squeezed.
// Script and style contents are discarded.
func StripTags(input string) string {
	if input == "" {
		return ""
	}

	z := nethtml.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return strings.TrimSpace(whitespace.ReplaceAllString(b.String(), " "))
		case nethtml.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case nethtml.SelfClosingTagToken:
			b.WriteByte(' ')
		case nethtml.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	n := string(name)
	return n == "script" || n == "style"
}

// CleanText strips markup, entities, URLs and punctuation, and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	text := html.UnescapeString(StripTags(input))
	text = RemoveURLs(text)
	text = punctuation.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Summarize returns text cut to at most maxRunes runes on a word boundary, with "..." when cut.
// maxRunes <= 0 leaves text untouched.
func Summarize(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

// ExtractKeywords returns up to limit of the most frequent words of at least minLen runes,
// ignoring stop-words. Ties are broken alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		if utf8.RuneCountInString(token) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// BuildDocumentID derives a stable id: the article link when known, otherwise title, text and time.
func BuildDocumentID(link, title, text string, ts time.Time) string {
	key := strings.TrimSpace(link)
	if key == "" {
		key = title + "|" + text + "|" + ts.UTC().Format(time.RFC3339)
	}
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}

// GenerateTitleFromText builds a headline from the first sentence of text, capped at maxWords.
func GenerateTitleFromText(text string, maxWords int) string {
	body := RemoveURLs(text)
	if end := strings.IndexAny(body, ".!?"); end > 0 {
		body = body[:end]
	}

	words := strings.Fields(body)
	if len(words) == 0 {
		return ""
	}
	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}
	return strings.Join(words, " ")
}
