// Package parser owns price-string normalization and URL helpers.
package parser

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Sanity bounds for parsed prices, in minor currency units. Anything below
// the minimum is treated as noise (installment rates, delivery fees) rather
// than a product price; anything above the maximum is a parse artifact.
const (
	MinPriceCents = int64(100)
	MaxPriceCents = int64(100_000_000)
)

var (
	priceNoise      = regexp.MustCompile(`[^\d,.\-]`)
	htmlProductCode = regexp.MustCompile(`(\d+)\.html`)
	trailingSegment = regexp.MustCompile(`-(\d+)/?$`)
	qualifierPrefix = regexp.MustCompile(`(?i)^\s*(od|from|max)\b`)
)

// ParsePrice converts a scraped price string to integer minor currency
// units. "549 zł" parses to 54900, "549,99 zł" to 54999. The second return
// is false when the text holds no price or the value falls outside the
// sanity bounds.
func ParsePrice(text string) (int64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	cleaned := strings.TrimSpace(priceNoise.ReplaceAllString(text, ""))
	if cleaned == "" {
		return 0, false
	}

	// Locale decimal comma becomes a dot; only the first one, a second
	// comma means the string was never a single price.
	normalized := strings.Replace(cleaned, ",", ".", 1)

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}

	cents := int64(math.Round(value * 100))
	if cents < MinPriceCents || cents > MaxPriceCents {
		return 0, false
	}
	return cents, true
}

// IsQualified reports whether a price string carries a "starting from"
// style qualifier ("od 549 zł"). Qualified candidates lose extraction
// tie-breaks to unqualified ones.
func IsQualified(text string) bool {
	return qualifierPrefix.MatchString(text)
}

// ExtractProductCode returns the trailing numeric path segment of a product
// URL ("...-10751839.html" or "...-1792417/"), or "" when the URL has none,
// which is the case for category listings.
func ExtractProductCode(rawURL string) string {
	if m := htmlProductCode.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := trailingSegment.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// BuildSearchURL expands a bare product code into the canonical search URL
// used when an item is added by code instead of by link.
func BuildSearchURL(productCode string) string {
	return fmt.Sprintf("https://www.morele.net/search/?q=%s", url.QueryEscape(productCode))
}

// IsWellFormedURL reports whether s parses as an absolute http(s) URL.
func IsWellFormedURL(s string) bool {
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
