package evidence_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/pkg/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPreviews(t *testing.T) *evidence.Previews {
	t.Helper()
	p, err := evidence.NewPreviews(t.TempDir(), discardLogger(), nil)
	require.NoError(t, err)
	return p
}

func TestPreviewsOpenAndRelease(t *testing.T) {
	p := newPreviews(t)

	handle, err := p.Open("halal-cert.pdf", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(handle))
	assert.Equal(t, 1, p.Len())

	path, ok := p.Path(handle)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, p.Release(handle))
	assert.Equal(t, 0, p.Len())
	_, ok = p.Path(handle)
	assert.False(t, ok)

	// second release is a no-op
	assert.NoError(t, p.Release(handle))
}

func TestPreviewsRejectTraversal(t *testing.T) {
	p := newPreviews(t)

	_, ok := p.Path("../etc/passwd")
	assert.False(t, ok)
	assert.NoError(t, p.Release("../etc/passwd"))
	assert.NoError(t, p.Release(""))
}

func TestPreviewsOwnedDirRemovedOnClose(t *testing.T) {
	p, err := evidence.NewPreviews("", discardLogger(), nil)
	require.NoError(t, err)

	_, err = p.Open("a.png", []byte("x"))
	require.NoError(t, err)
	_, err = p.Open("b.png", []byte("y"))
	require.NoError(t, err)

	dir := p.Dir()
	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestPreviewsExternalDirKeptOnClose(t *testing.T) {
	dir := t.TempDir()
	p, err := evidence.NewPreviews(dir, discardLogger(), nil)
	require.NoError(t, err)

	_, err = p.Open("a.png", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPreviewsReleasedOnShutdown(t *testing.T) {
	lc := lifecycle.New()
	p := newPreviews(t)
	p.Start(lc)

	_, err := p.Open("a.jpg", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, lc.Shutdown(5*time.Second))
	assert.Equal(t, 0, p.Len())
}
