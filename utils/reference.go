package utils

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// labelled references: "Réf : CD6109-200", "Référence: DD1391-100", "SKU CW2288-111"
var labelledReferenceRegex = regexp.MustCompile(`(?i)(?:r[ée]f(?:[ée]rence)?|sku|code|mod[eè]le)\s*[.:#-]?\s*([A-Z0-9][A-Z0-9_-]{3,}[A-Z0-9])`)

// bare style codes of the form XX9999-999
var styleCodeRegex = regexp.MustCompile(`\b([A-Z]{1,3}[0-9]{3,5}-[0-9]{3})\b`)

// ExtractReference finds the supplier reference in a product description or title.
// The description is searched first since titles are often marketing names.
func ExtractReference(description, title string) string {
	for _, source := range []string{StripHTML(description), title} {
		if source == "" {
			continue
		}
		for _, groups := range labelledReferenceRegex.FindAllStringSubmatch(source, -1) {
			if strings.ContainsAny(groups[1], "0123456789") {
				return strings.ToUpper(groups[1])
			}
		}
		if groups := styleCodeRegex.FindStringSubmatch(strings.ToUpper(source)); len(groups) > 1 {
			return groups[1]
		}
	}
	return ""
}

// StripHTML returns the text content of an HTML snippet
func StripHTML(snippet string) string {
	if !strings.Contains(snippet, "<") {
		return snippet
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}
	return CollapseWhitespace(doc.Text())
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims s and folds inner whitespace runs to a single space
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}
