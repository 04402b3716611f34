package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Fallback literals written when a field is structurally absent from a container.
const (
	NoTitle   = "No title available"
	NoPrice   = "Price not found"
	NoRating  = "No rating"
	NoReviews = "No reviews"
	NoLink    = ""
)

// Artifact column names. A profile selects an ordered subset of these.
const (
	ColumnTitle       = "Title"
	ColumnLink        = "Link"
	ColumnPrice       = "Price"
	ColumnRating      = "Product Rating"
	ColumnReviewCount = "Reviewer Count"
)

// DefaultColumns is the full artifact header in its declared order.
var DefaultColumns = []string{ColumnTitle, ColumnLink, ColumnPrice, ColumnRating, ColumnReviewCount}

// ProductRecord is one listing harvested from a search results page.
type ProductRecord struct {
	Title       string      `json:"title"`
	Link        string      `json:"link"`
	Price       Price       `json:"price"`
	Rating      Rating      `json:"rating"`
	ReviewCount ReviewCount `json:"review_count"`
	Page        int         `json:"page"`
}

// PageResult holds the records extracted from one page snapshot, in document order.
// A fetch failure yields an empty result with Err set.
type PageResult struct {
	Page    int
	Records []ProductRecord
	Err     error
}

// Price keeps the rendered text next to the parsed amount. Valid is false when the
// price was absent or could not be parsed; Amount is meaningless in that case.
type Price struct {
	Text   string  `json:"text"`
	Amount float64 `json:"amount,omitempty"`
	Valid  bool    `json:"valid"`
}

type Rating struct {
	Text  string  `json:"text"`
	Value float64 `json:"value,omitempty"`
	Valid bool    `json:"valid"`
}

type ReviewCount struct {
	Text  string `json:"text"`
	Value int    `json:"value,omitempty"`
	Valid bool   `json:"valid"`
}

var (
	decimalPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	integerPattern = regexp.MustCompile(`\d[\d,.]*`)

	// a run of digits and separators; a space only joins digit groups ("1 299,00")
	amountPattern  = regexp.MustCompile(`\d(?:[\d.,]|[ \x{00a0}\x{202f}]\d)*`)
	spacedGroups   = regexp.MustCompile(`^\d{1,3}(?:[ \x{00a0}\x{202f}]\d{3})+(?:[.,]\d+)?$`)
	commaThousands = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	dotThousands   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	commaGrouped   = regexp.MustCompile(`^\d{1,3}(?:,\d{3})*$|^\d+$`)
	dotGrouped     = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})*$|^\d+$`)
)

// ParsePrice parses texts like "$4.97", "$1,299", "1,299.00" or "1 299,00 $".
// A text holding more than one number ("2 / $5.00", "Was $5.99 Now $4.97") is
// kept as text only: no single amount can be read from it.
func ParsePrice(text string) Price {
	p := Price{Text: text}

	numbers := amountPattern.FindAllString(text, -1)
	if len(numbers) != 1 {
		return p
	}

	amount, ok := normalizeAmount(strings.TrimRight(numbers[0], ".,"))
	if !ok {
		return p
	}

	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return p
	}

	p.Amount = value
	p.Valid = true
	return p
}

// normalizeAmount rewrites a localized number with a dot decimal separator and
// no grouping. Ambiguous groupings are rejected.
func normalizeAmount(num string) (string, bool) {
	if strings.ContainsAny(num, " \u00a0\u202f") {
		if !spacedGroups.MatchString(num) {
			return "", false
		}
		num = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(num)
	}

	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// the separator that comes last is the decimal one
		sep, grouped, group := lastDot, commaGrouped, ","
		if lastComma > lastDot {
			sep, grouped, group = lastComma, dotGrouped, "."
		}
		whole, frac := num[:sep], num[sep+1:]
		if !grouped.MatchString(whole) {
			return "", false
		}
		return strings.ReplaceAll(whole, group, "") + "." + frac, true

	case lastComma >= 0:
		if commaThousands.MatchString(num) {
			return strings.ReplaceAll(num, ",", ""), true
		}
		if strings.Count(num, ",") == 1 && len(num)-lastComma-1 <= 2 {
			return strings.Replace(num, ",", ".", 1), true
		}
		return "", false

	case lastDot >= 0:
		if strings.Count(num, ".") == 1 {
			return num, true
		}
		if dotThousands.MatchString(num) {
			return strings.ReplaceAll(num, ".", ""), true
		}
		return "", false
	}

	return num, true
}

// ParseRating parses texts like "4.5" or "4,5 out of 5 stars".
func ParseRating(text string) Rating {
	r := Rating{Text: text}

	match := decimalPattern.FindString(text)
	if match == "" {
		return r
	}

	value, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return r
	}

	r.Value = value
	r.Valid = true
	return r
}

// ParseReviewCount parses texts like "1,234" or "1.234 reviews".
func ParseReviewCount(text string) ReviewCount {
	c := ReviewCount{Text: text}

	match := integerPattern.FindString(text)
	if match == "" {
		return c
	}

	digits := strings.NewReplacer(",", "", ".", "").Replace(match)
	value, err := strconv.Atoi(digits)
	if err != nil {
		return c
	}

	c.Value = value
	c.Valid = true
	return c
}

// Column returns the artifact cell for the named column.
func (r *ProductRecord) Column(name string) (string, bool) {
	switch name {
	case ColumnTitle:
		return r.Title, true
	case ColumnLink:
		return r.Link, true
	case ColumnPrice:
		return r.Price.Text, true
	case ColumnRating:
		return r.Rating.Text, true
	case ColumnReviewCount:
		return r.ReviewCount.Text, true
	default:
		return "", false
	}
}

// Row renders the record for the given columns. Unknown columns render empty.
func (r *ProductRecord) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i], _ = r.Column(col)
	}
	return row
}

// IsKnownColumn reports whether name is one of the artifact columns.
func IsKnownColumn(name string) bool {
	for _, col := range DefaultColumns {
		if col == name {
			return true
		}
	}
	return false
}
