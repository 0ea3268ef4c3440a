package adapters

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kimland-sync/internal/types"
)

// candidates below this score are not product listings
const MinCandidateScore = 3

// GenericPenalty is charged to placeholder fragments admitted by the relaxed pass
const GenericPenalty = 5

var (
	titleQuery = "h1, h2, h3, h4, h5, h6, .title, .name, [class*='title'], [class*='name']"
	priceQuery = ".price, .prix, [class*='price'], [class*='prix']"

	priceText = regexp.MustCompile(`(?i)\d[\d\s.,]*\s*(?:(?:da|dzd|dinars?|eur)\b|€|\$)|\b(?:da|dzd)\s*\d`)
)

// markers of layout chrome around the listing
var chromeMarkers = []string{
	"filter",
	"filtre",
	"sidebar",
	"menu",
	"navbar",
	"facet",
}

// names used by the back-office for fake or reserved listings
var placeholderNames = []string{
	"vip product",
	"produit vip",
	"placeholder",
	"lorem ipsum",
	"produit exemple",
	"sample product",
	"coming soon",
	"bientôt disponible",
}

// markers of a page that lists products
var productPageMarkers = []string{
	"product",
	"produit",
	"prix",
	"price",
	"add-to-cart",
	"ajouter au panier",
}

// markers of a server error or missing page
var errorPageMarkers = []string{
	"page not found",
	"404 not found",
	"page introuvable",
	"erreur 404",
	"fatal error",
	"parse error",
	"warning</b>:",
}

// ScoreFragment scores a DOM fragment as a listing of the product identified by identifier.
// Each signal only ever adds to the score.
func ScoreFragment(sel *goquery.Selection, identifier, displayName string) types.ScoreBreakdown {
	var b types.ScoreBreakdown
	text := strings.ToLower(sel.Text())

	if sel.Is("a[href]") || sel.Find("a[href]").Length() > 0 {
		b.HasLink = 1
	}
	if sel.Is("img") || sel.Find("img").Length() > 0 {
		b.HasImage = 1
	}
	if sel.Find(titleQuery).Length() > 0 {
		b.HasTitle = 1
	}
	if sel.Find(priceQuery).Length() > 0 || priceText.MatchString(text) {
		b.HasPrice = 1
	}

	if id := strings.ToLower(strings.TrimSpace(identifier)); id != "" && strings.Contains(text, id) {
		b.IdentifierHit = 3
	}

	for _, word := range strings.Fields(strings.ToLower(displayName)) {
		if len([]rune(word)) < 3 {
			continue
		}
		if strings.Contains(text, word) {
			b.NameWordHits++
			if b.NameWordHits == 3 {
				break
			}
		}
	}

	return b
}

// IsLayoutChrome reports whether sel is a filter, sidebar or menu element rather than a listing
func IsLayoutChrome(sel *goquery.Selection) bool {
	switch goquery.NodeName(sel) {
	case "label", "input":
		return true
	}

	if sel.Find("input[type='checkbox']").Length() > 0 {
		return true
	}

	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	inner, _ := sel.Html()
	haystack := strings.ToLower(class + " " + id + " " + inner)
	for _, marker := range chromeMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// IsGenericPlaceholder reports whether text names a placeholder listing
func IsGenericPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	for _, name := range placeholderNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// ScorePage scores a search result page between 0 and 7
func ScorePage(body, query string, minLength int) int {
	lower := strings.ToLower(body)
	score := 0

	if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(lower, q) {
		score += 3
	}
	for _, marker := range productPageMarkers {
		if strings.Contains(lower, marker) {
			score += 2
			break
		}
	}
	if len(body) > minLength {
		score++
	}
	if !IsErrorPage(body) {
		score++
	}
	return score
}

// IsErrorPage reports whether body looks like a server error or not-found page
func IsErrorPage(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range errorPageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// AcceptPage decides whether a scored search page is worth enumerating.
// Very large pages are accepted on a weaker score since they usually are full listings.
func AcceptPage(score, length, largeLength int) bool {
	return score >= 3 || (score >= 2 && length > largeLength)
}
