package pdf

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMissingBrowser(t *testing.T) {
	r := New(Options{}, nil)
	if r.Available() {
		t.Skip("a browser is installed")
	}
	_, err := r.Render(context.Background(), "<p>x</p>")
	assert.ErrorIs(t, err, ErrNoBrowser)
}

func TestNewDefaults(t *testing.T) {
	r := New(Options{Bin: "/opt/chrome"}, nil)
	assert.Equal(t, DefaultTimeout, r.timeout)
	assert.True(t, r.Available())
}

func TestRender(t *testing.T) {
	if os.Getenv("FILLIN_TEST_CHROME") == "" {
		t.Skip("set FILLIN_TEST_CHROME=1 to run against a local Chrome")
	}

	r := New(Options{Bin: os.Getenv("FILLIN_CHROME_BIN")}, nil)
	out, err := r.Render(context.Background(), "<html><body><h1>Offer for Ann</h1></body></html>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out[:4]))
}
