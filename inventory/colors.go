package inventory

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"kimland-sync/internal/types"
)

var colorWords = []string{
	"noir", "blanc", "rouge", "bleu", "vert", "jaune", "gris", "rose", "marron", "beige",
	"orange", "violet", "kaki", "bordeaux", "multicolore", "argent", "dore",
	"black", "white", "red", "blue", "green", "yellow", "grey", "gray", "pink", "brown",
	"navy", "purple", "silver", "gold",
}

var (
	sizeOptionNames  = []string{"size", "taille", "pointure", "dimension"}
	colorOptionNames = []string{"color", "colour", "couleur", "coloris"}
)

// minimum Jaro-Winkler similarity for a near-match with a color word
const colorSimilarity = 0.9

// IsColor reports whether value names a color, allowing inflected forms like "noire" or "blanche"
func IsColor(value string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		for _, color := range colorWords {
			if word == color {
				return true
			}
			if len(word) >= 4 && matchr.JaroWinkler(word, color, false) >= colorSimilarity {
				return true
			}
		}
	}
	return false
}

// DetectSizeColumn returns the option column (1 to 3) holding sizes.
// Option names win when they are known. Otherwise the first column whose values are not
// mostly colors is used, defaulting to 1.
func DetectSizeColumn(product *types.LocalProduct) int {
	for i, name := range product.Options {
		if i >= 3 {
			break
		}
		if containsWord(strings.ToLower(name), sizeOptionNames) {
			return i + 1
		}
	}

	for column := 1; column <= 3; column++ {
		if i := column - 1; i < len(product.Options) && containsWord(strings.ToLower(product.Options[i]), colorOptionNames) {
			continue
		}

		values, colors := 0, 0
		for _, v := range product.Variants {
			value := strings.TrimSpace(v.Option(column))
			if value == "" {
				continue
			}
			values++
			if IsColor(value) {
				colors++
			}
		}
		if values > 0 && colors*2 <= values {
			return column
		}
	}
	return 1
}

func containsWord(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
