package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/basket-harvester/internal/browser"
	"github.com/maltedev/basket-harvester/internal/profile"
)

// Tab is a rendered page that can be read and paginated.
type Tab interface {
	Navigator
	WaitForSelector(selector string, timeout time.Duration) error
	Content() (string, error)
	Close() error
}

// InteractiveSession harvests a dynamically rendered listing through a single
// browser tab.
type InteractiveSession struct {
	tab           Tab
	closer        func() error
	paginator     *Paginator
	readySelector string
	readyTimeout  time.Duration
	loadDelay     time.Duration
	sleep         func(time.Duration)
	logger        *slog.Logger
}

func NewInteractiveSession(tab Tab, closer func() error, p *profile.Profile, opts Options) *InteractiveSession {
	return &InteractiveSession{
		tab:           tab,
		closer:        closer,
		paginator:     NewPaginator(tab, p.Selectors.Next, opts.ControlTimeout, opts.SettleDelay),
		readySelector: p.Selectors.Ready,
		readyTimeout:  opts.ReadyTimeout,
		loadDelay:     opts.PageLoadDelay,
		sleep:         time.Sleep,
		logger:        slog.Default().With("component", "interactive_session", "profile", p.Name),
	}
}

// OpenInteractive launches a browser and opens the profile's start URL.
func OpenInteractive(p *profile.Profile, opts Options) (*InteractiveSession, error) {
	b, err := browser.New(opts.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	page, err := b.Open(p.StartURL)
	if err != nil {
		if closeErr := b.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}

	return NewInteractiveSession(page, b.Close, p, opts), nil
}

// Fetch waits for the readiness selector, lets the page settle and returns
// the rendered markup.
func (s *InteractiveSession) Fetch(ctx context.Context) (string, error) {
	if err := s.tab.WaitForSelector(s.readySelector, s.readyTimeout); err != nil {
		if errors.Is(err, browser.ErrElementUnavailable) {
			return "", fmt.Errorf("%w: %s after %s", ErrNotReady, s.readySelector, s.readyTimeout)
		}
		return "", err
	}

	s.sleep(s.loadDelay)

	return s.tab.Content()
}

func (s *InteractiveSession) Advance(ctx context.Context) PageState {
	return s.paginator.Advance()
}

// Err is the pagination error, if the session ended in StateFailed.
func (s *InteractiveSession) Err() error {
	return s.paginator.Err()
}

func (s *InteractiveSession) Close() error {
	var errs []error
	if err := s.tab.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.closer != nil {
		if err := s.closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
