package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text   string
		amount float64
		valid  bool
	}{
		{"$4.97", 4.97, true},
		{"1,299.00", 1299, true},
		{"4,97 $", 4.97, true},
		{"$12", 12, true},
		{"$1,299", 1299, true},
		{"$1,299.99", 1299.99, true},
		{"1 299,00 $", 1299, true},
		{"1.299,00 $", 1299, true},
		{"$2.47/lb", 2.47, true},
		{"2 / $5.00", 0, false},
		{"Was $5.99 Now $4.97", 0, false},
		{"$12,99,0", 0, false},
		{"1 29,00 $", 0, false},
		{NoPrice, 0, false},
		{"Price not available", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			p := ParsePrice(tt.text)
			assert.Equal(t, tt.text, p.Text)
			assert.Equal(t, tt.valid, p.Valid)
			assert.InDelta(t, tt.amount, p.Amount, 0.0001)
		})
	}
}

func TestParseRatingAndReviews(t *testing.T) {
	r := ParseRating("4,5 out of 5 stars")
	assert.True(t, r.Valid)
	assert.InDelta(t, 4.5, r.Value, 0.0001)

	assert.False(t, ParseRating(NoRating).Valid)

	c := ParseReviewCount("1.234 reviews")
	assert.True(t, c.Valid)
	assert.Equal(t, 1234, c.Value)

	c = ParseReviewCount(NoReviews)
	assert.False(t, c.Valid)
	assert.Equal(t, NoReviews, c.Text)
}

func TestRecordRow(t *testing.T) {
	r := ProductRecord{
		Title:       "Milk",
		Link:        "https://www.walmart.com/ip/1",
		Price:       ParsePrice("$3.64"),
		Rating:      Rating{Text: NoRating},
		ReviewCount: ParseReviewCount("12"),
	}

	assert.Equal(t,
		[]string{"Milk", "https://www.walmart.com/ip/1", "$3.64", NoRating, "12"},
		r.Row(DefaultColumns))
	assert.Equal(t, []string{"Milk", "$3.64"}, r.Row([]string{ColumnTitle, ColumnPrice}))
	assert.Equal(t, []string{""}, r.Row([]string{"Colour"}))
}
