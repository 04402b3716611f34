package scraper

import "github.com/maltedev/basket-harvester/internal/models"

// Accumulator collects the records of every page in crawl order. Duplicates
// across pages are kept.
type Accumulator struct {
	records    []models.ProductRecord
	pages      int
	pageErrors int
	hasMore    bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{hasMore: true}
}

func (a *Accumulator) AppendPage(result models.PageResult) {
	a.pages++
	if result.Err != nil {
		a.pageErrors++
	}
	a.records = append(a.records, result.Records...)
}

// Drain returns a copy of everything collected so far.
func (a *Accumulator) Drain() []models.ProductRecord {
	out := make([]models.ProductRecord, len(a.records))
	copy(out, a.records)
	return out
}

func (a *Accumulator) Len() int {
	return len(a.records)
}

func (a *Accumulator) Pages() int {
	return a.pages
}

func (a *Accumulator) PageErrors() int {
	return a.pageErrors
}

func (a *Accumulator) HasMore() bool {
	return a.hasMore
}

func (a *Accumulator) SetHasMore(more bool) {
	a.hasMore = more
}
