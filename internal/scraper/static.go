package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/maltedev/basket-harvester/internal/ratelimit"
)

// StaticFetcher retrieves server-rendered pages with a single GET.
type StaticFetcher struct {
	client *resty.Client
}

func NewStaticFetcher(timeout time.Duration, userAgent string) *StaticFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")

	return &StaticFetcher{client: client}
}

// Fetch never retries. A non-2xx status is reported as ErrUnexpectedStatus.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode(), url)
	}

	return string(resp.Body()), nil
}

// StaticSession walks numbered result pages built from the profile's start URL.
type StaticSession struct {
	fetcher *StaticFetcher
	profile *profile.Profile
	limiter ratelimit.RateLimiter
	page    int
	logger  *slog.Logger
}

func NewStaticSession(fetcher *StaticFetcher, p *profile.Profile, limiter ratelimit.RateLimiter) *StaticSession {
	return &StaticSession{
		fetcher: fetcher,
		profile: p,
		limiter: limiter,
		page:    1,
		logger:  slog.Default().With("component", "static_session", "profile", p.Name),
	}
}

func (s *StaticSession) Fetch(ctx context.Context) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := s.profile.PageURL(s.page)
	s.logger.Debug("fetching page", "page", s.page, "url", url)

	return s.fetcher.Fetch(ctx, url)
}

// Advance moves to the next page number. A start URL without a page
// placeholder has exactly one page.
func (s *StaticSession) Advance(ctx context.Context) PageState {
	if !s.profile.Paginated() {
		return StateExhausted
	}
	s.page++
	return StateReady
}

func (s *StaticSession) Close() error {
	return nil
}
