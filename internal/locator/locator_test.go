package locator

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btpctl/internal/failure"
)

// probeCounter confines the locator to root and counts filesystem probes.
type probeCounter struct {
	root     string
	stats    int
	lookups  int
	pathHits string
}

func newTestLocator(t *testing.T, opts Options) (*Locator, *probeCounter) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on Windows")
	}
	pc := &probeCounter{root: t.TempDir()}
	if opts.GOOS == "" {
		opts.GOOS = "linux"
	}
	l := New(opts)
	l.stat = func(path string) (fs.FileInfo, error) {
		pc.stats++
		if !strings.HasPrefix(path, pc.root) {
			return nil, fs.ErrNotExist
		}
		return os.Stat(path)
	}
	l.lookPath = func(name string) (string, error) {
		pc.lookups++
		if pc.pathHits != "" {
			return pc.pathHits, nil
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	l.getenv = func(string) string { return "" }
	l.homeDir = func() (string, error) { return filepath.Join(pc.root, "home"), nil }
	return l, pc
}

func writeBinary(t *testing.T, dir string, mode os.FileMode) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "btp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestLocate_CachesSuccess(t *testing.T) {
	l, pc := newTestLocator(t, Options{})
	dir := filepath.Join(pc.root, "tools")
	l.opts.SearchDirs = []string{dir}
	want := writeBinary(t, dir, 0o755)

	first, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, want, first.Path)
	assert.Equal(t, SourceConfigured, first.Source)

	stats, lookups := pc.stats, pc.lookups
	second, err := l.Locate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, stats, pc.stats, "second Locate touched the filesystem")
	assert.Equal(t, lookups, pc.lookups, "second Locate searched PATH")

	cached, ok := l.Cached()
	assert.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestLocate_SearchPathFirst(t *testing.T) {
	l, pc := newTestLocator(t, Options{})
	pc.pathHits = "/usr/bin/btp"

	loc, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/btp", loc.Path)
	assert.Equal(t, SourcePath, loc.Source)
	assert.Equal(t, 0, pc.stats)
}

func TestLocate_WellKnownHomeBin(t *testing.T) {
	l, pc := newTestLocator(t, Options{})
	want := writeBinary(t, filepath.Join(pc.root, "home", "bin"), 0o755)

	loc, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, want, loc.Path)
	assert.Equal(t, SourceWellKnown, loc.Source)
}

func TestLocate_Override(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		l, pc := newTestLocator(t, Options{})
		path := writeBinary(t, filepath.Join(pc.root, "opt"), 0o755)
		l.opts.Override = path

		loc, err := l.Locate()
		require.NoError(t, err)
		assert.Equal(t, path, loc.Path)
		assert.Equal(t, SourceOverride, loc.Source)
		assert.Equal(t, 0, pc.lookups)
	})

	t.Run("directory", func(t *testing.T) {
		l, pc := newTestLocator(t, Options{})
		dir := filepath.Join(pc.root, "opt")
		path := writeBinary(t, dir, 0o755)
		l.opts.Override = dir

		loc, err := l.Locate()
		require.NoError(t, err)
		assert.Equal(t, path, loc.Path)
	})

	t.Run("missing does not fall back", func(t *testing.T) {
		l, pc := newTestLocator(t, Options{})
		pc.pathHits = "/usr/bin/btp"
		l.opts.Override = filepath.Join(pc.root, "nope", "btp")

		_, err := l.Locate()
		require.Error(t, err)
		assert.Equal(t, failure.KindBinaryNotFound, failure.KindOf(err))
		assert.Equal(t, 0, pc.lookups)
	})
}

func TestLocate_SkipsNonExecutable(t *testing.T) {
	l, pc := newTestLocator(t, Options{})
	writeBinary(t, filepath.Join(pc.root, "home", "bin"), 0o644)
	want := writeBinary(t, filepath.Join(pc.root, "home", ".local", "bin"), 0o755)

	loc, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, want, loc.Path)
}

func TestLocate_NotFoundIsNotCached(t *testing.T) {
	l, pc := newTestLocator(t, Options{})

	_, err := l.Locate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrBinaryNotFound))

	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "$PATH/btp", fe.Checked[0])
	assert.Contains(t, fe.Checked, "/usr/local/bin/btp")
	assert.Contains(t, fe.Checked, "/opt/sap/btp/btp")
	assert.Contains(t, fe.Hint, "BTPCTL_CLI_PATH")

	_, ok := l.Cached()
	assert.False(t, ok)

	writeBinary(t, filepath.Join(pc.root, "home", "bin"), 0o755)
	loc, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, SourceWellKnown, loc.Source)
}

func TestBinaryName(t *testing.T) {
	assert.Equal(t, "btp.exe", BinaryName("windows"))
	assert.Equal(t, "btp", BinaryName("linux"))
	assert.Equal(t, "btp", BinaryName("darwin"))
}

func TestWellKnownDirs(t *testing.T) {
	env := map[string]string{
		"LOCALAPPDATA": `C:\Users\ana\AppData\Local`,
		"ProgramFiles": `C:\Program Files`,
	}
	getenv := func(k string) string { return env[k] }

	assert.Equal(t, []string{
		filepath.Join(`C:\Users\ana\AppData\Local`, "SAP", "btp"),
		filepath.Join(`C:\Program Files`, "SAP", "btp"),
	}, WellKnownDirs("windows", getenv, ""), "USERPROFILE unset is skipped")

	assert.Equal(t, []string{
		"/usr/local/bin", "/opt/homebrew/bin", "/opt/sap/btp", filepath.Join("/Users/ana", "bin"),
	}, WellKnownDirs("darwin", getenv, "/Users/ana"))

	assert.Equal(t, []string{
		"/usr/local/bin", "/usr/bin", "/opt/sap/btp",
	}, WellKnownDirs("linux", getenv, ""))
}
