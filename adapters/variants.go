package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

type optionPattern struct {
	name string
	re   *regexp.Regexp
}

// Option text formats seen on the detail page, most specific first. Each has a label group and a
// quantity group. The "- stock" form is tried before "<label>: <n>" which would otherwise swallow it.
var optionPatterns = []optionPattern{
	{"dimension-pieces", regexp.MustCompile(`(?i)^dimension\s*:\s*(.+?)\s*-\s*(\d+)\s*pi[eéè]ces?(?:\(s\))?$`)},
	{"pieces", regexp.MustCompile(`(?i)^(.+?)\s*-\s*(\d+)\s*pi[eéè]ces?(?:\(s\))?$`)},
	{"dash-stock", regexp.MustCompile(`(?i)^(.+?)\s*-\s*stock\s*:?\s*(\d+)$`)},
	{"colon", regexp.MustCompile(`^(.+?)\s*:\s*(\d+)$`)},
	{"parens", regexp.MustCompile(`^(.+?)\s*\(\s*(\d+)\s*\)$`)},
	{"brackets", regexp.MustCompile(`^(.+?)\s*\[\s*(\d+)\s*\]$`)},
}

var labelPrefix = regexp.MustCompile(`(?i)^(?:dimension|taille|pointure|size)\s*:\s*`)

var (
	sizeSelectNames     = []string{"size", "taille", "pointure", "dimension"}
	excludedSelectNames = []string{"categ", "search", "recherche", "sort", "orderby", "order_by"}
	promptOptions       = []string{"choisir", "choisissez", "sélectionner", "selectionner", "select", "--"}
)

var (
	numericLabel = regexp.MustCompile(`\d`)

	sizeClassSelectors = []string{
		"[class*='size-option']",
		"[class*='size-item']",
		"[class*='taille']",
		".sizes li",
		".size",
	}
)

// VariantExtractor reads size/stock pairs from a product detail page
type VariantExtractor struct {
	*BaseAdapter
}

// NewVariantExtractor creates a variant extractor
func NewVariantExtractor(base *BaseAdapter) *VariantExtractor {
	return &VariantExtractor{BaseAdapter: base}
}

// Extract fetches the detail page with the session cookie and parses its size options.
// A page without size options yields an empty list, not an error.
func (v *VariantExtractor) Extract(ctx context.Context, detailURL string) ([]types.RemoteVariant, error) {
	v.logger.Debugf("Extracting variants from %s", detailURL)

	html, err := v.GetPageContent(ctx, detailURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get detail page: %w", err)
	}

	doc, err := v.ParseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseFailure, err)
	}

	variants := ExtractFromDocument(doc)
	v.logger.Debugf("Found %d variants on %s", len(variants), detailURL)
	return variants, nil
}

// ExtractFromDocument parses the size options of a detail page
func ExtractFromDocument(doc *goquery.Document) []types.RemoteVariant {
	if sel := findSizeSelect(doc); sel != nil {
		var variants []types.RemoteVariant
		sel.Find("option").Each(func(_ int, option *goquery.Selection) {
			if isPromptOption(option) {
				return
			}
			if variant, ok := ParseOption(option.Text()); ok {
				variants = append(variants, variant)
			}
		})
		return variants
	}

	return extractSizeElements(doc)
}

// ParseOption parses one option text into a size label and a stock quantity.
// Text with a label but no quantity yields stock 0. It reports false for empty text.
func ParseOption(text string) (types.RemoteVariant, bool) {
	text = utils.CollapseWhitespace(text)
	if text == "" {
		return types.RemoteVariant{}, false
	}

	for _, pattern := range optionPatterns {
		m := pattern.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		if pattern.name == "colon" && isSizeVocabulary(label) {
			// "Dimension: 42" is a bare label
			continue
		}
		stock, err := strconv.Atoi(m[2])
		if err != nil || label == "" {
			continue
		}
		return types.RemoteVariant{Size: label, Stock: stock}, true
	}

	label := strings.TrimSpace(labelPrefix.ReplaceAllString(text, ""))
	if label == "" {
		return types.RemoteVariant{}, false
	}
	return types.RemoteVariant{Size: label, Stock: 0}, true
}

func findSizeSelect(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection

	doc.Find("select").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key := selectKey(s)
		if containsAnyOf(key, excludedSelectNames) {
			return true
		}
		if containsAnyOf(key, sizeSelectNames) {
			found = s
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	// no select is named after sizes, take the first one offering numeric options
	doc.Find("select").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if containsAnyOf(selectKey(s), excludedSelectNames) {
			return true
		}
		numeric := 0
		s.Find("option").Each(func(_ int, option *goquery.Selection) {
			text := strings.ToLower(option.Text())
			if numericLabel.MatchString(text) && !strings.Contains(text, "categ") {
				numeric++
			}
		})
		if numeric > 0 {
			found = s
			return false
		}
		return true
	})
	return found
}

func extractSizeElements(doc *goquery.Document) []types.RemoteVariant {
	var variants []types.RemoteVariant
	seen := make(map[string]bool)

	add := func(label string, stock int) {
		label = utils.CollapseWhitespace(label)
		if label == "" || seen[strings.ToLower(label)] {
			return
		}
		seen[strings.ToLower(label)] = true
		variants = append(variants, types.RemoteVariant{Size: label, Stock: stock})
	}

	doc.Find("[data-size]").Each(func(_ int, s *goquery.Selection) {
		stock := 0
		for _, attr := range []string{"data-stock", "data-qty", "data-quantity"} {
			if raw, ok := s.Attr(attr); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
					stock = n
					break
				}
			}
		}
		label, _ := s.Attr("data-size")
		add(label, stock)
	})
	if len(variants) > 0 {
		return variants
	}

	for _, selector := range sizeClassSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if s.Find("li").Length() > 0 {
				return
			}
			add(s.Text(), 0)
		})
		if len(variants) > 0 {
			break
		}
	}
	return variants
}

func selectKey(s *goquery.Selection) string {
	name, _ := s.Attr("name")
	id, _ := s.Attr("id")
	return strings.ToLower(name + " " + id)
}

func isPromptOption(option *goquery.Selection) bool {
	if value, ok := option.Attr("value"); ok && strings.TrimSpace(value) == "" {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(option.Text()))
	for _, prompt := range promptOptions {
		if strings.HasPrefix(text, prompt) {
			return true
		}
	}
	return false
}

func isSizeVocabulary(label string) bool {
	lower := strings.ToLower(label)
	for _, word := range sizeSelectNames {
		if lower == word {
			return true
		}
	}
	return false
}

func containsAnyOf(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
