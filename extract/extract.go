// Package extract pulls product details out of semi-structured shop markup.
//
// The shop's templates change often, so price resolution runs an ordered
// chain of strategies, from the designated price container down to scanning
// bare text nodes, stopping at the first one that yields a candidate.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mjanda/go-price-tracker/parser"
)

// Info is the raw extraction result. PriceText is unparsed; callers run it
// through parser.ParsePrice.
type Info struct {
	Name        string
	PriceText   string
	ProductCode string
	ImageURL    string
	Category    string
}

var (
	// priceInText matches a numeric-currency token anywhere in a string.
	priceInText = regexp.MustCompile(`\d+(?:[ .]\d{3})*(?:[.,]\d+)?\s*zł`)
	// standalonePrice matches strings that are nothing but a price token,
	// optionally with a leading qualifier.
	standalonePrice = regexp.MustCompile(`^(?i:(?:od|from|max)\s+)?\d+(?:[ .]\d{3})*(?:[.,]\d+)?\s*zł$`)
)

// priceContainerSelectors are class/attribute patterns that commonly wrap a
// price, tried as the second strategy after the designated container.
var priceContainerSelectors = []string{
	`[class*="price"]`,
	`[class*="Price"]`,
	`[data-price]`,
	`.product-price`,
	`.current-price`,
	`[class*="cost"]`,
	`[class*="Cost"]`,
}

// imageSelectors are tried in order; the final fallback (any image hosted on
// the source domain) is handled separately because it depends on the URL.
var imageSelectors = []string{
	`img[alt*="produkt"]`,
	`img[alt*="product"]`,
	`.product-image img`,
	`[class*="gallery"] img`,
	`.swiper-slide img`,
}

// Extract runs the full extraction chain against pageHTML. finalURL is the
// URL the fetcher ended up on after redirects; the product code comes from
// it, and relative image sources resolve against it.
func Extract(pageHTML, finalURL string) (*Info, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	info := &Info{
		Name:        extractName(doc),
		PriceText:   extractPriceText(doc),
		ProductCode: parser.ExtractProductCode(finalURL),
		Category:    extractCategory(doc),
		ImageURL:    extractImage(doc, finalURL),
	}
	return info, nil
}

func extractName(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(title, " - ", 2)[0])
}

// extractPriceText applies the four price strategies in strict precedence
// order and returns the first hit, or "".
func extractPriceText(doc *goquery.Document) string {
	if text := priceFromDesignatedContainer(doc); text != "" {
		return text
	}
	if text := priceFromPriceLikeElements(doc); text != "" {
		return text
	}
	if text := priceFromTextNodes(doc); text != "" {
		return text
	}
	return priceFromLeafElements(doc)
}

func priceFromDesignatedContainer(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("#product_price").First().Text())
}

func priceFromPriceLikeElements(doc *goquery.Document) string {
	var candidates []string
	for _, selector := range priceContainerSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text != "" && priceInText.MatchString(text) {
				candidates = append(candidates, priceInTextWithQualifier(text))
			}
		})
		if len(candidates) > 0 {
			break
		}
	}
	return pickCandidate(candidates)
}

// priceInTextWithQualifier trims a matched element's text down to the price
// token, keeping a leading qualifier word so the tie-break can see it.
func priceInTextWithQualifier(text string) string {
	loc := priceInText.FindStringIndex(text)
	if loc == nil {
		return text
	}
	token := text[loc[0]:loc[1]]
	head := strings.ToLower(strings.TrimSpace(text[:loc[0]]))
	for _, qualifier := range []string{"od", "from", "max"} {
		if head == qualifier || strings.HasSuffix(head, " "+qualifier) {
			return qualifier + " " + token
		}
	}
	return token
}

func priceFromTextNodes(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}

	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" && standalonePrice.MatchString(text) {
				found = text
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body.Get(0))
	return found
}

func priceFromLeafElements(doc *goquery.Document) string {
	var candidates []string
	doc.Find("span, div, p").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text != "" && len(text) < 20 && standalonePrice.MatchString(text) {
			candidates = append(candidates, text)
		}
	})
	return pickCandidate(candidates)
}

// pickCandidate implements the tie-break for multiple price candidates:
// the highest value not marked "starting from" wins; when every candidate
// is marked, the highest wins anyway.
func pickCandidate(candidates []string) string {
	var best string
	var bestCents int64
	var bestQualified bool

	for _, candidate := range candidates {
		cents, ok := parser.ParsePrice(candidate)
		if !ok {
			continue
		}
		qualified := parser.IsQualified(candidate)

		switch {
		case best == "":
			best, bestCents, bestQualified = candidate, cents, qualified
		case bestQualified && !qualified:
			best, bestCents, bestQualified = candidate, cents, qualified
		case bestQualified == qualified && cents > bestCents:
			best, bestCents = candidate, cents
		}
	}
	return best
}

// extractCategory walks the breadcrumb trail backwards and picks the last
// plain category link, skipping compound/filtered category URLs. When no
// plain link exists, any category link from the trail is accepted.
func extractCategory(doc *goquery.Document) string {
	var links []*goquery.Selection
	for _, selector := range []string{".main-breadcrumb a", `[class*="breadcrumb"] a`} {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			links = append(links, sel)
		})
		if len(links) > 0 {
			break
		}
	}

	var fallback string
	for i := len(links) - 1; i >= 0; i-- {
		href, _ := links[i].Attr("href")
		if !strings.Contains(href, "/kategoria/") {
			continue
		}
		text := strings.TrimSpace(links[i].Text())
		if text == "" {
			continue
		}
		if !strings.Contains(href, ",") && !strings.Contains(href, "?") {
			return text
		}
		if fallback == "" {
			fallback = text
		}
	}
	return fallback
}

func extractImage(doc *goquery.Document, finalURL string) string {
	for _, selector := range imageSelectors {
		if src := imageSource(doc.Find(selector).First(), finalURL); src != "" {
			return src
		}
	}

	host := ""
	if parsed, err := url.Parse(finalURL); err == nil {
		host = strings.TrimPrefix(parsed.Host, "www.")
	}
	if host == "" {
		return ""
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if strings.Contains(src, host) {
			found = resolveURL(src, finalURL)
			return false
		}
		return true
	})
	return found
}

func imageSource(sel *goquery.Selection, base string) string {
	src, ok := sel.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return ""
	}
	return resolveURL(src, base)
}

func resolveURL(ref, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
