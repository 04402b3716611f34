package scraper

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/basket-harvester/internal/browser"
)

type PageState int

const (
	StateReady PageState = iota
	StateAdvancing
	StateExhausted
	StateFailed
)

func (s PageState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAdvancing:
		return "advancing"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("PageState(%d)", int(s))
	}
}

func (s PageState) Terminal() bool {
	return s == StateExhausted || s == StateFailed
}

// Navigator drives the pagination control of a rendered page.
type Navigator interface {
	WaitActionable(selector string, timeout time.Duration) error
	ScrollIntoView(selector string) error
	Click(selector string) error
}

// Paginator advances a rendered listing through its "next" control.
//
//	Ready -> Advancing -> Ready      control clicked
//	                   -> Exhausted  control missing or not actionable in time
//	                   -> Failed     any other navigation error
//
// Exhausted and Failed are sticky.
type Paginator struct {
	nav      Navigator
	selector string
	timeout  time.Duration
	settle   time.Duration
	sleep    func(time.Duration)
	state    PageState
	err      error
	logger   *slog.Logger
}

func NewPaginator(nav Navigator, selector string, controlTimeout, settleDelay time.Duration) *Paginator {
	return &Paginator{
		nav:      nav,
		selector: selector,
		timeout:  controlTimeout,
		settle:   settleDelay,
		sleep:    time.Sleep,
		state:    StateReady,
		logger:   slog.Default().With("component", "paginator"),
	}
}

func (p *Paginator) State() PageState {
	return p.state
}

// Err is the navigation error that moved the paginator to StateFailed.
func (p *Paginator) Err() error {
	return p.err
}

func (p *Paginator) Advance() PageState {
	if p.state.Terminal() {
		return p.state
	}

	p.state = StateAdvancing

	if err := p.nav.WaitActionable(p.selector, p.timeout); err != nil {
		if errors.Is(err, browser.ErrElementUnavailable) {
			p.logger.Info("no further pages", "selector", p.selector)
			p.state = StateExhausted
			return p.state
		}
		return p.fail("wait for next control", err)
	}

	if err := p.nav.ScrollIntoView(p.selector); err != nil {
		return p.fail("scroll to next control", err)
	}

	p.sleep(p.settle)

	if err := p.nav.Click(p.selector); err != nil {
		return p.fail("click next control", err)
	}

	p.state = StateReady
	return p.state
}

func (p *Paginator) fail(step string, err error) PageState {
	p.err = fmt.Errorf("failed to %s: %w", step, err)
	p.state = StateFailed
	p.logger.Error("pagination failed", "selector", p.selector, "error", p.err)
	return p.state
}
