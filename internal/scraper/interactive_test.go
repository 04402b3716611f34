package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/basket-harvester/internal/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractiveFetch(t *testing.T) {
	tab := &fakeTab{html: listing("Milk")}
	opts := noDelays()
	opts.PageLoadDelay = 5 * time.Second

	s := NewInteractiveSession(tab, nil, shop(t), opts)
	var sleeps []time.Duration
	s.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	html, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, "Milk")
	assert.Equal(t, []string{"ready", "content"}, tab.calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps)
}

func TestInteractiveFetchNotReady(t *testing.T) {
	tab := &fakeTab{readyErr: browser.ErrElementUnavailable}
	s := NewInteractiveSession(tab, nil, shop(t), noDelays())

	_, err := s.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, []string{"ready"}, tab.calls)

	crashed := errors.New("page crashed")
	tab = &fakeTab{readyErr: crashed}
	s = NewInteractiveSession(tab, nil, shop(t), noDelays())

	_, err = s.Fetch(context.Background())
	assert.ErrorIs(t, err, crashed)
	assert.NotErrorIs(t, err, ErrNotReady)
}

func TestInteractiveClose(t *testing.T) {
	tab := &fakeTab{}
	closerErr := errors.New("playwright already stopped")
	s := NewInteractiveSession(tab, func() error { return closerErr }, shop(t), noDelays())

	err := s.Close()
	assert.ErrorIs(t, err, closerErr)
	assert.Equal(t, 1, tab.closed)
}
