package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/basket-harvester/internal/browser"
	"github.com/maltedev/basket-harvester/internal/models"
)

var (
	ErrUnreachable      = errors.New("site unreachable")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	ErrNotReady         = errors.New("page content not ready")
)

// Session is the live handle of one crawl. It is owned by a single harvest
// and closed exactly once.
type Session interface {
	// Fetch returns the markup of the current page.
	Fetch(ctx context.Context) (string, error)
	// Advance moves to the next page. Any state other than StateReady is terminal.
	Advance(ctx context.Context) PageState
	Close() error
}

// SessionOpener is called once the site is known to be reachable.
type SessionOpener func(ctx context.Context) (Session, error)

type Sink interface {
	Persist(ctx context.Context, run *models.HarvestRun, records []models.ProductRecord) error
}

// Destination is implemented by sinks that write to a named artifact.
type Destination interface {
	Location() string
}

type Options struct {
	MaxPages        int
	ConnectAttempts int
	ConnectDelay    time.Duration
	ReadyTimeout    time.Duration
	ControlTimeout  time.Duration
	SettleDelay     time.Duration
	PageLoadDelay   time.Duration
	PageDelay       time.Duration
	RequestTimeout  time.Duration
	UserAgent       string
	Browser         *browser.Options
}

func DefaultOptions() Options {
	return Options{
		MaxPages:        100,
		ConnectAttempts: 3,
		ConnectDelay:    5 * time.Second,
		ReadyTimeout:    10 * time.Second,
		ControlTimeout:  10 * time.Second,
		SettleDelay:     2 * time.Second,
		PageLoadDelay:   5 * time.Second,
		PageDelay:       1 * time.Second,
		RequestTimeout:  30 * time.Second,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
		Browser:         browser.DefaultOptions(),
	}
}
