package adapters

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

var tracer = otel.Tracer("kimland-sync/adapters")

type searchEndpoint struct {
	path  string
	param string
}

// Public catalog search first, then the authenticated client area.
// Parameter names are the ones the site has used over time.
var searchEndpoints = []searchEndpoint{
	{"/recherche", "search"},
	{"/catalogue", "q"},
	{"/", "s"},
	{"/app/client/index.php?page=produits", "reference"},
	{"/app/client/produits.php", "keyword"},
	{"/app/client/recherche.php", "search"},
}

// generic listing pages tried when no search page is acceptable
var fallbackPages = []string{
	"/app/client/index.php?page=produits",
	"/produits",
	"/",
}

// Fragment selectors, in order: vendor classes, Bootstrap grid cells, generic product/item
// classes, then semantic containers.
var candidateSelectors = []string{
	".product-item",
	".produit",
	".product-card",
	".product-thumb",
	".item-product",
	"[class*='col-lg-']",
	"[class*='col-md-']",
	"[class*='col-sm-']",
	"[class*='col-xs-']",
	"[class*='product']",
	"[class*='item']",
	"article",
	".card",
}

var (
	nameSelectors = []string{
		".product-title",
		".product-name",
		".nom-produit",
		"[class*='title']",
		"[class*='name']",
		"h2", "h3", "h4", "h5",
	}
	linkSelectors = []string{
		"a[href*='produit']",
		"a[href*='product']",
		"a[href*='detail']",
		"a[href]",
	}
	imageSelectors = []string{
		"img[data-src]",
		"img",
	}
	priceSelectors = []string{
		".price-new",
		".new-price",
		".special-price",
		".price ins",
		".price",
		".prix",
		"[class*='price']",
		"[class*='prix']",
	}
	oldPriceSelectors = []string{
		".price-old",
		".old-price",
		".ancien-prix",
		"del",
		"s",
	}
)

var (
	candidateQuery   = strings.Join(candidateSelectors, ", ")
	productLinkQuery = strings.Join(linkSelectors[:3], ", ")
)

var (
	tokenSplit  = regexp.MustCompile(`[-_\s]+`)
	priceNumber = regexp.MustCompile(`\d[\d\s.,]*`)
)

// minimum length of a token taking part in name validation
const minTokenLength = 4

// Locator finds the listing of one product on the remote site
type Locator struct {
	*BaseAdapter
	variants *VariantExtractor
}

// NewLocator creates a locator that reads variants with the given extractor
func NewLocator(base *BaseAdapter, variants *VariantExtractor) *Locator {
	if variants == nil {
		variants = NewVariantExtractor(base)
	}
	return &Locator{
		BaseAdapter: base,
		variants:    variants,
	}
}

// Locate searches the remote site for identifier and returns the matching product with its
// variants. It returns nil, nil when no listing passes validation; only a cancelled context
// is reported as an error.
func (l *Locator) Locate(ctx context.Context, identifier, displayName string) (*types.RemoteProduct, error) {
	ctx, span := tracer.Start(ctx, "Locate")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	span.SetAttributes(attribute.String("identifier", identifier))
	if identifier == "" {
		return nil, nil
	}

	queries := append([]string{identifier}, AlternateQueries(identifier, l.config.MaxAlternateQueries)...)

	for attempt := 0; attempt < len(queries); attempt++ {
		query := queries[attempt]
		if attempt > 0 {
			l.logger.Infof("Retrying %s with alternate query %q (%d/%d)", identifier, query, attempt, len(queries)-1)
			if err := sleepContext(ctx, l.config.AlternateQueryDelay); err != nil {
				return nil, err
			}
		}

		doc, pageURL := l.fetchResults(ctx, query)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc == nil {
			l.logger.Warnf("No usable result page for %q", query)
			return nil, nil
		}

		candidate := l.bestCandidate(doc, identifier, displayName)
		if candidate == nil {
			l.logDiagnostics(doc, identifier, displayName)
			return nil, nil
		}

		product := l.buildProduct(candidate, identifier, pageURL)
		if !ValidateMatch(product.Name, identifier) {
			l.logger.Warnf("Rejected %q for %s (score %d, selector %s)", product.Name, identifier, candidate.Score, candidate.SelectorUsed)
			continue
		}

		l.logger.Infof("Located %s as %q (score %d, selector %s)", identifier, product.Name, candidate.Score, candidate.SelectorUsed)
		product.Variants = l.readVariants(ctx, candidate, product.URL)
		span.SetAttributes(attribute.Int("variants", len(product.Variants)))
		return product, nil
	}

	l.logger.Warnf("No valid listing for %s after %d queries", identifier, len(queries))
	return nil, nil
}

// AlternateQueries derives fallback search queries from identifier: the part before the first
// dash, the identifier without separators, and its first token. At most max are returned.
func AlternateQueries(identifier string, max int) []string {
	identifier = strings.TrimSpace(identifier)
	seen := map[string]bool{strings.ToLower(identifier): true}
	var out []string

	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] || len(out) >= max {
			return
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
	}

	if i := strings.Index(identifier, "-"); i > 0 {
		add(identifier[:i])
	}
	add(tokenSplit.ReplaceAllString(identifier, ""))
	if tokens := tokenSplit.Split(identifier, -1); len(tokens) > 0 {
		add(tokens[0])
	}
	return out
}

// ValidateMatch decides whether a located listing name can belong to identifier
func ValidateMatch(name, identifier string) bool {
	name = strings.TrimSpace(name)
	if name == "" || IsGenericPlaceholder(name) {
		return false
	}

	lowerName := strings.ToLower(name)
	lowerID := strings.ToLower(strings.TrimSpace(identifier))
	if lowerID != "" && strings.Contains(lowerName, lowerID) {
		return true
	}

	nameTokens := tokens(lowerName)
	for _, idToken := range tokens(lowerID) {
		for _, nameToken := range nameTokens {
			if strings.Contains(nameToken, idToken) || strings.Contains(idToken, nameToken) {
				return true
			}
		}
	}
	return false
}

func tokens(s string) []string {
	var out []string
	for _, t := range tokenSplit.Split(s, -1) {
		if len([]rune(t)) >= minTokenLength {
			out = append(out, t)
		}
	}
	return out
}

func buildSearchURL(endpoint searchEndpoint, query string) string {
	u, err := url.Parse(endpoint.path)
	if err != nil {
		return endpoint.path
	}
	q := u.Query()
	q.Set(endpoint.param, query)
	u.RawQuery = q.Encode()
	return u.String()
}

// SearchURLs lists the search pages tried for query, in order
func SearchURLs(query string) []string {
	urls := make([]string, 0, len(searchEndpoints))
	for _, endpoint := range searchEndpoints {
		urls = append(urls, buildSearchURL(endpoint, query))
	}
	return RemoveDuplicateURLs(urls)
}

func (l *Locator) fetchResults(ctx context.Context, query string) (*goquery.Document, string) {
	accept := func(body string) bool {
		score := ScorePage(body, query, l.config.MinPageLength)
		return AcceptPage(score, len(body), l.config.LargePageLength)
	}

	for _, target := range SearchURLs(query) {
		body, err := l.GetPageContent(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ""
			}
			l.logger.Debugf("Search page %s failed: %v", target, err)
			continue
		}
		if accept(body) {
			l.logger.Debugf("Accepted search page %s (%d bytes)", target, len(body))
			return l.parse(body, target)
		}
		l.logger.Debugf("Search page %s scored too low", target)
	}

	marker := strings.ToLower(l.config.VendorMarker)
	for _, target := range fallbackPages {
		body, err := l.GetPageContent(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ""
			}
			continue
		}
		if strings.Contains(strings.ToLower(body), marker) && len(body) > l.config.MinPageLength {
			l.logger.Debugf("Using generic listing page %s", target)
			return l.parse(body, target)
		}
	}

	for _, target := range SearchURLs(query) {
		body, err := l.GetPublicPageContent(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ""
			}
			continue
		}
		if accept(body) {
			l.logger.Debugf("Accepted public page %s", target)
			return l.parse(body, target)
		}
	}

	return nil, ""
}

func (l *Locator) parse(body, target string) (*goquery.Document, string) {
	doc, err := l.ParseHTML(body)
	if err != nil {
		l.logger.Warnf("Failed to parse %s: %v", target, err)
		return nil, ""
	}
	return doc, l.ResolveURL(target)
}

func (l *Locator) bestCandidate(doc *goquery.Document, identifier, displayName string) *types.CandidateFragment {
	candidates := FindCandidates(doc, identifier, displayName, false)
	if len(candidates) == 0 {
		l.logger.Debugf("No candidates for %s, retrying with placeholder fragments", identifier)
		candidates = FindCandidates(doc, identifier, displayName, true)
	}
	if len(candidates) == 0 {
		return nil
	}

	// ties go to the innermost fragment
	best := &candidates[0]
	for i := range candidates[1:] {
		c := &candidates[i+1]
		if c.Score > best.Score || (c.Score == best.Score && best.Fragment.Contains(c.Fragment.Get(0))) {
			best = c
		}
	}
	return best
}

// FindCandidates enumerates the fragments of doc that look like a product listing, in
// encounter order. Layout chrome and wrappers around several listings are skipped.
// Placeholder fragments are skipped unless relaxed is set, in which case they are kept
// with a penalty.
func FindCandidates(doc *goquery.Document, identifier, displayName string, relaxed bool) []types.CandidateFragment {
	var candidates []types.CandidateFragment
	seen := make(map[*html.Node]bool)

	for _, selector := range candidateSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if seen[node] {
				return
			}
			seen[node] = true

			if IsLayoutChrome(s) || IsListingContainer(s, identifier, displayName) {
				return
			}

			breakdown := ScoreFragment(s, identifier, displayName)
			if IsGenericPlaceholder(s.Text()) {
				if !relaxed {
					return
				}
				breakdown.GenericPenalty = GenericPenalty
			}

			if score := breakdown.Total(); score >= MinCandidateScore {
				candidates = append(candidates, types.CandidateFragment{
					Fragment:     s,
					SelectorUsed: selector,
					Score:        score,
					Breakdown:    breakdown,
				})
			}
		})
	}
	return candidates
}

// IsListingContainer reports whether sel wraps several product listings: it links to more
// than one product page, or holds more than one nested fragment that scores as a listing
// on its own.
func IsListingContainer(sel *goquery.Selection, identifier, displayName string) bool {
	hrefs := make(map[string]bool)
	sel.Find(productLinkQuery).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		hrefs[strings.TrimSpace(href)] = true
	})
	if len(hrefs) > 1 {
		return true
	}

	// Find walks in document order, so an outer listing is seen before its descendants
	var listings []*goquery.Selection
	sel.Find(candidateQuery).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ScoreFragment(s, identifier, displayName).Total() < MinCandidateScore {
			return true
		}
		for _, outer := range listings {
			if outer.Contains(s.Get(0)) {
				return true
			}
		}
		listings = append(listings, s)
		return len(listings) < 2
	})
	return len(listings) > 1
}

func (l *Locator) buildProduct(candidate *types.CandidateFragment, identifier, pageURL string) *types.RemoteProduct {
	frag := candidate.Fragment

	name := FirstText(frag, nameSelectors)
	if name == "" {
		name = FirstAttr(frag, []string{"a[title]", "img[alt]"}, "title", "alt")
	}

	link := FirstAttr(frag, linkSelectors, "href")
	productURL := ""
	if link != "" {
		productURL = utils.ResolveURL(pageURL, link)
	}

	image := FirstAttr(frag, imageSelectors, "data-src", "src", "data-lazy")
	if image != "" {
		image = utils.ResolveURL(pageURL, image)
	}

	product := &types.RemoteProduct{
		ID:       productID(productURL, identifier),
		Name:     name,
		URL:      productURL,
		Price:    ParsePrice(FirstText(frag, priceSelectors)),
		ImageURL: image,
	}
	if old := ParsePrice(FirstText(frag, oldPriceSelectors)); old > 0 && old != product.Price {
		product.OldPrice = &old
	}
	return product
}

// readVariants extracts variants from the detail page, or from the fragment itself when the
// listing has no link
func (l *Locator) readVariants(ctx context.Context, candidate *types.CandidateFragment, detailURL string) []types.RemoteVariant {
	if detailURL == "" {
		return ExtractFromDocument(goquery.NewDocumentFromNode(candidate.Fragment.Get(0)))
	}

	variants, err := l.variants.Extract(ctx, detailURL)
	if err != nil {
		l.logger.Warnf("Failed to read variants from %s: %v", detailURL, err)
		return nil
	}
	return variants
}

func productID(productURL, fallback string) string {
	if productURL == "" {
		return fallback
	}
	u, err := url.Parse(productURL)
	if err != nil {
		return fallback
	}
	for _, key := range []string{"id", "id_produit", "product_id", "ref"} {
		if v := u.Query().Get(key); v != "" {
			return v
		}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segments[len(segments)-1]; last != "" && !strings.HasSuffix(last, ".php") {
		return last
	}
	return fallback
}

// ParsePrice reads the first amount of text, accepting "2 500,00 DA", "2.500 DA" or "25.50".
// It returns 0 when text holds no amount.
func ParsePrice(text string) float64 {
	raw := priceNumber.FindString(text)
	raw = strings.Join(strings.Fields(raw), "")
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return 0
	}

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case lastComma >= 0:
		if len(raw)-lastComma-1 == 3 {
			raw = strings.ReplaceAll(raw, ",", "")
		} else {
			raw = strings.Replace(raw, ",", ".", 1)
		}
	case lastDot >= 0:
		if len(raw)-lastDot-1 == 3 {
			raw = strings.ReplaceAll(raw, ".", "")
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

// CountElements counts element tags and class names below the document root
func CountElements(doc *goquery.Document) (tags map[string]int, classes map[string]int) {
	tags = make(map[string]int)
	classes = make(map[string]int)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tags[n.Data]++
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					for _, class := range strings.Fields(attr.Val) {
						classes[class]++
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return tags, classes
}

func (l *Locator) logDiagnostics(doc *goquery.Document, identifier, displayName string) {
	tags, classes := CountElements(doc)
	l.logger.Warnf("No candidate for %s. Tags: %s", identifier, topCounts(tags, 10))
	l.logger.Warnf("No candidate for %s. Classes: %s", identifier, topCounts(classes, 15))

	target := strings.ToLower(displayName)
	if target == "" {
		target = strings.ToLower(identifier)
	}
	bestText, bestSim := "", 0.0
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		text := utils.CollapseWhitespace(s.Text())
		if text == "" {
			return
		}
		if sim := matchr.JaroWinkler(strings.ToLower(text), target, false); sim > bestSim {
			bestText, bestSim = text, sim
		}
	})
	if bestText != "" {
		l.logger.Debugf("Closest link text to %q: %q (%.2f)", target, bestText, bestSim)
	}
}

func topCounts(counts map[string]int, n int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(counts[k])
	}
	return strings.Join(parts, " ")
}
