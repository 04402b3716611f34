package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
)

var ErrNilContainer = errors.New("nil product container")

// ListingParser extracts product records from search result markup using the
// locators of a site profile.
type ListingParser struct {
	selectors  profile.Selectors
	fallbacks  profile.Fallbacks
	linkPrefix string
}

func NewListingParser(p *profile.Profile) *ListingParser {
	return &ListingParser{
		selectors:  p.Selectors,
		fallbacks:  p.Fallbacks,
		linkPrefix: p.LinkPrefix,
	}
}

// ExtractPage returns one record per product container, in document order.
// A page without the result grid yields no records and no error.
func (p *ListingParser) ExtractPage(html string) ([]models.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := doc.Selection
	if p.selectors.Grid != "" {
		root = doc.Find(p.selectors.Grid).First()
		if root.Length() == 0 {
			return nil, nil
		}
	}

	var records []models.ProductRecord
	root.Find(p.selectors.Container).Each(func(i int, s *goquery.Selection) {
		record, err := p.Extract(s)
		if err != nil {
			return
		}
		records = append(records, record)
	})

	return records, nil
}

// Extract reads every field of one container. Missing fields take their fallback
// literal; only a nil or empty container is an error.
func (p *ListingParser) Extract(container *goquery.Selection) (models.ProductRecord, error) {
	if container == nil || container.Length() == 0 {
		return models.ProductRecord{}, ErrNilContainer
	}

	record := models.ProductRecord{
		Title: p.extractTitle(container),
		Link:  p.extractLink(container),
		Price: p.extractPrice(container),
	}

	if text, ok := lookup(container, p.selectors.Rating); ok {
		record.Rating = models.ParseRating(text)
	} else {
		record.Rating = models.Rating{Text: p.fallbacks.Rating}
	}

	if text, ok := lookup(container, p.selectors.ReviewCount); ok {
		record.ReviewCount = models.ParseReviewCount(text)
	} else {
		record.ReviewCount = models.ReviewCount{Text: p.fallbacks.ReviewCount}
	}

	return record, nil
}

func (p *ListingParser) extractTitle(container *goquery.Selection) string {
	if title, ok := lookup(container, p.selectors.Title); ok {
		return title
	}
	return p.fallbacks.Title
}

func (p *ListingParser) extractLink(container *goquery.Selection) string {
	href, ok := lookup(container, p.selectors.Link)
	if !ok {
		return models.NoLink
	}
	return NormalizeLink(p.linkPrefix, href)
}

func (p *ListingParser) extractPrice(container *goquery.Selection) models.Price {
	loc := p.selectors.Price
	if loc.Selector == "" {
		return models.Price{Text: p.fallbacks.Price}
	}

	el := container.Find(loc.Selector).First()
	if el.Length() == 0 {
		return models.Price{Text: p.fallbacks.Price}
	}

	// Split rendering, e.g. <span class="f2">4</span><span>97</span>
	if loc.Whole != "" || loc.Fraction != "" {
		whole := firstText(el, loc.Whole, "0")
		fraction := firstText(el, loc.Fraction, "00")
		return models.ParsePrice(fmt.Sprintf("%s%s.%s", loc.Currency, whole, fraction))
	}

	text, ok := read(el, loc.Attr)
	if !ok {
		return models.Price{Text: p.fallbacks.Price}
	}
	return models.ParsePrice(text)
}

// NormalizeLink makes a product href absolute against the site prefix.
// Hrefs already carrying the prefix, or any other absolute http(s) URL, are kept
// verbatim, so normalizing twice is the same as normalizing once.
func NormalizeLink(prefix, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || prefix == "" || strings.HasPrefix(href, prefix) {
		return href
	}

	if strings.HasPrefix(href, "//") {
		scheme := "https"
		if u, err := url.Parse(prefix); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + href
	}

	if u, err := url.Parse(href); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return href
	}

	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(href, "/")
}

func lookup(container *goquery.Selection, loc profile.Locator) (string, bool) {
	if loc.Selector == "" {
		return "", false
	}

	el := container.Find(loc.Selector).First()
	if el.Length() == 0 {
		return "", false
	}

	return read(el, loc.Attr)
}

func read(el *goquery.Selection, attr string) (string, bool) {
	var value string
	if attr != "" {
		v, exists := el.Attr(attr)
		if !exists {
			return "", false
		}
		value = v
	} else {
		value = el.Text()
	}

	value = cleanText(value)
	return value, value != ""
}

func firstText(el *goquery.Selection, selector, fallback string) string {
	if selector == "" {
		return fallback
	}
	text := cleanText(el.Find(selector).First().Text())
	if text == "" {
		return fallback
	}
	return text
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
