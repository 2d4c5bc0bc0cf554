package gtfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverProviders(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"beta", "alpha"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "stops.txt"),
			[]byte("stop_id,stop_name,stop_lat,stop_lon"),
			0o644,
		))
	}
	// Not datasets: a directory without stops.txt and a stray file.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644))

	providers, err := DiscoverProviders(root)
	require.NoError(t, err)
	assert.Equal(t, []Provider{
		{Name: "alpha", Dir: filepath.Join(root, "alpha")},
		{Name: "beta", Dir: filepath.Join(root, "beta")},
	}, providers)
}

func TestDiscoverProviders_EmptyRoot(t *testing.T) {
	providers, err := DiscoverProviders(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestDiscoverProviders_MissingRoot(t *testing.T) {
	_, err := DiscoverProviders(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSession(t *testing.T) {
	dir := newDirBuilderWithDefaults().build(t)
	session := NewSession(testOptions())
	assert.NotEmpty(t, session.ID())

	_, _, ok := session.Feed()
	assert.False(t, ok, "a new session must not have an active provider")

	provider := Provider{Name: "metro", Dir: dir}
	result, err := session.Use(context.Background(), provider)
	require.NoError(t, err)
	require.NotNil(t, result.Feed)

	feed, active, ok := session.Feed()
	require.True(t, ok)
	assert.Equal(t, provider, active)
	assert.Same(t, result.Feed, feed)

	session.Clear()
	_, _, ok = session.Feed()
	assert.False(t, ok)
}

func TestSession_UseFailureKeepsSnapshot(t *testing.T) {
	good := newDirBuilderWithDefaults().build(t)
	session := NewSession(testOptions())
	_, err := session.Use(context.Background(), Provider{Name: "good", Dir: good})
	require.NoError(t, err)

	_, err = session.Use(context.Background(), Provider{Name: "broken", Dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to activate provider "broken"`)

	_, active, ok := session.Feed()
	require.True(t, ok)
	assert.Equal(t, "good", active.Name)
}

func TestSession_DistinctIDs(t *testing.T) {
	a := NewSession(testOptions())
	b := NewSession(testOptions())
	assert.NotEqual(t, a.ID(), b.ID())
}
