package inventory

import (
	"regexp"
	"strings"
)

// clothing labels and their spelled-out forms
var sizeTable = map[string]string{
	"xxs":         "XXS",
	"xs":          "XS",
	"s":           "S",
	"small":       "S",
	"m":           "M",
	"medium":      "M",
	"l":           "L",
	"large":       "L",
	"xl":          "XL",
	"extra large": "XL",
	"xxl":         "XXL",
	"2xl":         "XXL",
	"xxxl":        "XXXL",
	"3xl":         "XXXL",
	"4xl":         "XXXXL",
	"xxxxl":       "XXXXL",
}

// labels that stand for "the only size" of a product
var sentinelSizes = map[string]bool{
	"standard":      true,
	"dimension":     true,
	"unique":        true,
	"taille unique": true,
	"tu":            true,
	"one size":      true,
}

var (
	sizePrefix   = regexp.MustCompile(`(?i)^(?:taille|pointure|size|eu|fr)\s*:?\s*`)
	sizeSuffix   = regexp.MustCompile(`(?i)\s*(?:eu|fr)$`)
	shoeDecimal  = regexp.MustCompile(`^(\d{2})[.,](\d)$`)
	shoeFraction = regexp.MustCompile(`^(\d{2})\s*([12])/3$`)
)

// NormalizeSize maps a size label from either system to its canonical form.
// Labels it does not know are returned trimmed but otherwise unchanged.
func NormalizeSize(label string) string {
	trimmed := strings.Join(strings.Fields(label), " ")
	if trimmed == "" {
		return ""
	}

	s := sizePrefix.ReplaceAllString(trimmed, "")
	s = sizeSuffix.ReplaceAllString(s, "")
	lower := strings.ToLower(s)

	if canonical, ok := sizeTable[lower]; ok {
		return canonical
	}

	if m := shoeDecimal.FindStringSubmatch(s); m != nil {
		if m[2] == "0" {
			return m[1]
		}
		return m[1] + "." + m[2]
	}
	if m := shoeFraction.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[2] + "/3"
	}
	if isShoeSize(s) {
		return s
	}

	return trimmed
}

// IsSentinelSize reports whether label names a single-size product
func IsSentinelSize(label string) bool {
	return sentinelSizes[strings.ToLower(strings.Join(strings.Fields(label), " "))]
}

func isShoeSize(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= '1' && s[0] <= '5' && s[1] >= '0' && s[1] <= '9'
}
