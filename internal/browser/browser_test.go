package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1200, opts.ViewportWidth)
	assert.Equal(t, 900, opts.ViewportHeight)
	assert.Equal(t, "en-CA", opts.Locale)
	assert.NotEmpty(t, opts.UserAgent)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("a.next", nil))

	err := classify("a.next", playwright.ErrTimeout)
	assert.ErrorIs(t, err, ErrElementUnavailable)
	assert.Contains(t, err.Error(), "a.next")

	other := errors.New("target closed")
	err = classify("a.next", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrElementUnavailable)
}
