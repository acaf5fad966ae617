package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

var _ crawl.BlobStore = (*BlobStore)(nil)

func TestNewPreparesRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "artifacts", "nested")
	store, err := New(Config{BaseDir: root})
	require.NoError(t, err)
	require.Equal(t, root, store.root)
	require.DirExists(t, root)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "write check file must be removed")
}

func TestNewRejectsBadRoots(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "  "})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file})
	require.Error(t, err)
}

func TestNewRejectsReadOnlyRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	t.Parallel()

	root := t.TempDir()
	// #nosec G302 -- read-only directory is the point of the test.
	require.NoError(t, os.Chmod(root, 0o500))
	// #nosec G302 -- restore so TempDir cleanup succeeds.
	t.Cleanup(func() { _ = os.Chmod(root, 0o700) })

	_, err := New(Config{BaseDir: root})
	require.ErrorContains(t, err, "not writable")
}

func TestPutObjectWritesArtifactAndMeta(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(Config{BaseDir: root})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "catalogs/acme/20240102/abc.html", "text/html", strings.NewReader("<html>acme</html>"))
	require.NoError(t, err)

	want := filepath.Join(root, "catalogs", "acme", "20240102", "abc.html")
	require.Equal(t, "file://"+filepath.ToSlash(want), uri)
	// #nosec G304 -- reads from the test's temp directory.
	body, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "<html>acme</html>", string(body))

	meta, err := store.ReadMeta("catalogs/acme/20240102/abc.html")
	require.NoError(t, err)
	require.Equal(t, Meta{ContentType: "text/html", Size: int64(len(body))}, meta)
}

func TestPutObjectReplacesWithoutLeftovers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(Config{BaseDir: root})
	require.NoError(t, err)

	for _, body := range []string{"v1", "version two"} {
		_, err := store.PutObject(context.Background(), "acme.html", "text/html", strings.NewReader(body))
		require.NoError(t, err)
	}

	// #nosec G304 -- reads from the test's temp directory.
	body, err := os.ReadFile(filepath.Join(root, "acme.html"))
	require.NoError(t, err)
	require.Equal(t, "version two", string(body))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"acme.html", "acme.html.meta.json"}, names)
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, path := range []string{"", "../escape.html", "a/../../escape.html", "..", "x.meta.json"} {
		_, err := store.PutObject(context.Background(), path, "", strings.NewReader("x"))
		require.Error(t, err, path)
	}
}

func TestPutObjectHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(Config{BaseDir: root})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.PutObject(ctx, "a.html", "", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
	require.NoFileExists(t, filepath.Join(root, "a.html"))
}
