package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/stretchr/testify/require"
)

const shopProfile = `
name: shop
mode: interactive
start_url: https://shop.example.com/search
link_prefix: https://shop.example.com
pages: 100
columns: [Title, Link, Price]
selectors:
  grid: ul.results
  container: li.item
  next: a.next
  title:
    selector: h3
  link:
    selector: a
    attr: href
  price:
    selector: span.price
`

func shop(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Parse([]byte(shopProfile))
	require.NoError(t, err)
	return p
}

// listing renders a result grid with one container per title.
func listing(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="results">`)
	for i, title := range titles {
		fmt.Fprintf(&b, `<li class="item"><a href="/p/%d">x</a><h3>%s</h3><span class="price">$%d.99</span></li>`, i, title, i+1)
	}
	b.WriteString(`</ul><a class="next" href="#">Next</a></body></html>`)
	return b.String()
}

// noDelays keeps every wait at zero so tests run instantly.
func noDelays() Options {
	opts := DefaultOptions()
	opts.ConnectDelay = 0
	opts.ReadyTimeout = 0
	opts.ControlTimeout = 0
	opts.SettleDelay = 0
	opts.PageLoadDelay = 0
	opts.PageDelay = 0
	opts.RequestTimeout = 5 * time.Second
	return opts
}

type fakePage struct {
	html string
	err  error
}

type fakeSession struct {
	pages         []fakePage
	current       int
	alwaysAdvance bool
	fetches       int
	advances      int
	closed        int
}

func (s *fakeSession) Fetch(ctx context.Context) (string, error) {
	s.fetches++
	p := s.pages[min(s.current, len(s.pages)-1)]
	return p.html, p.err
}

func (s *fakeSession) Advance(ctx context.Context) PageState {
	s.advances++
	if s.alwaysAdvance {
		s.current++
		return StateReady
	}
	if s.current+1 < len(s.pages) {
		s.current++
		return StateReady
	}
	return StateExhausted
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeSink struct {
	calls   int
	run     *models.HarvestRun
	records []models.ProductRecord
	ctxErr  error
	err     error
}

func (s *fakeSink) Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error {
	s.calls++
	s.run = run
	s.records = records
	s.ctxErr = ctx.Err()
	return s.err
}

func (s *fakeSink) Location() string {
	return "out.csv"
}

// scriptedTransport answers requests in turn with the scripted errors; the
// last entry repeats and a nil entry is a 200 response.
type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		if err := s.errs[min(s.calls-1, len(s.errs)-1)]; err != nil {
			return nil, err
		}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

type fakeTab struct {
	html      string
	readyErr  error
	waitErr   error
	scrollErr error
	clickErr  error
	calls     []string
	closed    int
}

func (f *fakeTab) WaitForSelector(selector string, timeout time.Duration) error {
	f.calls = append(f.calls, "ready")
	return f.readyErr
}

func (f *fakeTab) Content() (string, error) {
	f.calls = append(f.calls, "content")
	return f.html, nil
}

func (f *fakeTab) WaitActionable(selector string, timeout time.Duration) error {
	f.calls = append(f.calls, "wait")
	return f.waitErr
}

func (f *fakeTab) ScrollIntoView(selector string) error {
	f.calls = append(f.calls, "scroll")
	return f.scrollErr
}

func (f *fakeTab) Click(selector string) error {
	f.calls = append(f.calls, "click")
	return f.clickErr
}

func (f *fakeTab) Close() error {
	f.closed++
	return nil
}
