package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is one rendered tab. It exposes only the waits and actions the
// harvester drives.
type Page struct {
	page   playwright.Page
	logger *slog.Logger
}

// WaitForSelector blocks until selector is attached to the DOM.
func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return classify(selector, err)
}

// WaitActionable blocks until selector is visible and not disabled.
func (p *Page) WaitActionable(selector string, timeout time.Duration) error {
	locator := p.page.Locator(selector).First()

	err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(selector, err)
	}

	enabled, err := locator.IsEnabled()
	if err != nil {
		return classify(selector, err)
	}

	ariaDisabled, _ := locator.GetAttribute("aria-disabled")
	if !enabled || ariaDisabled == "true" {
		return fmt.Errorf("%w: %s is disabled", ErrElementUnavailable, selector)
	}

	return nil
}

func (p *Page) ScrollIntoView(selector string) error {
	_, err := p.page.Locator(selector).First().Evaluate("el => el.scrollIntoView(true)", nil)
	return classify(selector, err)
}

// Click dispatches a script click, which is not intercepted by overlays the
// way a pointer click is.
func (p *Page) Click(selector string) error {
	_, err := p.page.Locator(selector).First().Evaluate("el => el.click()", nil)
	return classify(selector, err)
}

func (p *Page) Content() (string, error) {
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (p *Page) Close() error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

func classify(selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s: %v", ErrElementUnavailable, selector, err)
	}
	return fmt.Errorf("failed on %s: %w", selector, err)
}
