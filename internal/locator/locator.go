// Package locator finds the btp executable and remembers where it is.
package locator

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"btpctl/internal/failure"
	"btpctl/internal/logging"
)

// Source records which step of the search produced a location.
type Source string

const (
	SourceOverride   Source = "override"
	SourcePath       Source = "path"
	SourceWellKnown  Source = "well-known"
	SourceConfigured Source = "search-dir"
)

// Location is a resolved binary.
type Location struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// Options configures a Locator.
type Options struct {
	// Override is an explicit binary path. When set, no other place is searched.
	Override string

	// SearchDirs are probed after the well-known install directories.
	SearchDirs []string

	// GOOS selects the binary name and well-known directories. Defaults to runtime.GOOS.
	GOOS string
}

// Locator resolves the binary once and caches the result for its lifetime.
// Failed lookups are not cached, so installing the CLI fixes a running process.
type Locator struct {
	opts Options

	mu     sync.Mutex
	cached *Location

	stat     func(string) (fs.FileInfo, error)
	lookPath func(string) (string, error)
	getenv   func(string) string
	homeDir  func() (string, error)
}

// New creates a Locator.
func New(opts Options) *Locator {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	return &Locator{
		opts:     opts,
		stat:     os.Stat,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		homeDir:  os.UserHomeDir,
	}
}

// Locate returns the binary location, searching on the first call only.
func (l *Locator) Locate() (Location, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return *l.cached, nil
	}

	loc, checked, ok := l.search()
	if !ok {
		logging.LocatorWarn("btp not found; checked %d locations", len(checked))
		fe := failure.New(failure.KindBinaryNotFound, "btp executable not found (checked %s)", strings.Join(checked, ", "))
		fe.Checked = checked
		return Location{}, fe
	}

	logging.Locator("Using btp at %s (%s)", loc.Path, loc.Source)
	l.cached = &loc
	return loc, nil
}

// Cached reports the cached location without searching.
func (l *Locator) Cached() (Location, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached == nil {
		return Location{}, false
	}
	return *l.cached, true
}

func (l *Locator) search() (Location, []string, bool) {
	var checked []string
	name := BinaryName(l.opts.GOOS)

	if l.opts.Override != "" {
		path := l.opts.Override
		if info, err := l.stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, name)
		}
		checked = append(checked, path)
		if l.isExecutable(path) {
			return Location{Path: absPath(path), Source: SourceOverride}, checked, true
		}
		logging.LocatorWarn("Override %s is not an executable file", path)
		return Location{}, checked, false
	}

	checked = append(checked, "$PATH/"+name)
	if path, err := l.lookPath(name); err == nil {
		return Location{Path: absPath(path), Source: SourcePath}, checked, true
	}

	home, _ := l.homeDir()
	for _, dir := range WellKnownDirs(l.opts.GOOS, l.getenv, home) {
		path := filepath.Join(dir, name)
		checked = append(checked, path)
		if l.isExecutable(path) {
			return Location{Path: path, Source: SourceWellKnown}, checked, true
		}
	}

	for _, dir := range l.opts.SearchDirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name)
		checked = append(checked, path)
		if l.isExecutable(path) {
			return Location{Path: absPath(path), Source: SourceConfigured}, checked, true
		}
	}

	return Location{}, checked, false
}

func (l *Locator) isExecutable(path string) bool {
	info, err := l.stat(path)
	if err != nil {
		logging.LocatorDebug("Probe %s: %v", path, err)
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	if l.opts.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// BinaryName returns the executable's file name for an OS.
func BinaryName(goos string) string {
	if goos == "windows" {
		return "btp.exe"
	}
	return "btp"
}

// WellKnownDirs lists the standard install directories for an OS, in probe order.
// Entries that depend on an unset variable are omitted.
func WellKnownDirs(goos string, getenv func(string) string, home string) []string {
	var dirs []string
	add := func(parts ...string) {
		for _, p := range parts {
			if p == "" {
				return
			}
		}
		dirs = append(dirs, filepath.Join(parts...))
	}

	switch goos {
	case "windows":
		add(getenv("LOCALAPPDATA"), "SAP", "btp")
		add(getenv("ProgramFiles"), "SAP", "btp")
		add(getenv("USERPROFILE"), "bin")
	case "darwin":
		add("/usr/local/bin")
		add("/opt/homebrew/bin")
		add("/opt/sap/btp")
		add(home, "bin")
	default:
		add("/usr/local/bin")
		add("/usr/bin")
		add("/opt/sap/btp")
		add(home, "bin")
		add(home, ".local", "bin")
	}
	return dirs
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
