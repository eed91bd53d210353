// Package assets owns the output directory of a session: where the manifest
// goes, clearing stale manifests and segments before a run, checking the
// manifest after it, and removing the session's output on exit when asked to.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/smazurov/streamgear/internal/logging"
)

// Errors returned by the asset manager.
var (
	ErrBadOutput       = errors.New("output must be a directory or a .mpd file path")
	ErrNoManifest      = errors.New("manifest not found")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrUnsafeDir       = errors.New("refusing to modify directory")
)

// ManifestExt is the DASH manifest extension.
const ManifestExt = ".mpd"

// Segment names written by the dash muxer, see ffmpeg.BuildArgs.
var (
	segmentPrefixes = []string{"init-", "chunk-"}
	segmentExts     = []string{".m4s", ".tmp"}
)

// Manager owns one output directory.
type Manager struct {
	dir      string
	manifest string
	// dedicated is set when the output named the directory itself rather
	// than a manifest inside it.
	dedicated bool
	created   bool
	logger   logging.Logger
}

// New resolves output into a directory and manifest path. A path ending in
// .mpd names the manifest; anything else without an extension, or an
// existing directory, is the output directory and gets a generated
// manifest name. Nothing is touched on disk until Prepare.
func New(output string, logger logging.Logger) (*Manager, error) {
	if strings.TrimSpace(output) == "" {
		return nil, ErrBadOutput
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return nil, fmt.Errorf("resolve output %q: %w", output, err)
	}

	m := &Manager{logger: logger}

	fi, statErr := os.Stat(abs)
	switch {
	case statErr == nil && fi.IsDir():
		m.dir = abs
		m.dedicated = true
	case strings.EqualFold(filepath.Ext(abs), ManifestExt):
		m.dir = filepath.Dir(abs)
		m.manifest = abs
	case statErr == nil:
		return nil, fmt.Errorf("%w: %s is a file", ErrBadOutput, output)
	case filepath.Ext(abs) == "":
		m.dir = abs
		m.dedicated = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadOutput, output)
	}

	if m.manifest == "" {
		m.manifest = filepath.Join(m.dir, "dash_"+uuid.NewString()[:8]+ManifestExt)
	}
	return m, nil
}

// Dir returns the output directory.
func (m *Manager) Dir() string { return m.dir }

// ManifestPath returns the manifest path.
func (m *Manager) ManifestPath() string { return m.manifest }

// Prepare creates the output directory. When clear is set, manifests and
// segments left in it by earlier runs are deleted; other files are kept.
func (m *Manager) Prepare(clear bool) error {
	if _, err := os.Stat(m.dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		m.created = true
		m.logger.Debug("Created output directory", "dir", m.dir)
	} else if err != nil {
		return fmt.Errorf("stat output directory: %w", err)
	}

	if !clear || m.created {
		return nil
	}

	n, err := m.removeAssets(func(name string) bool {
		return isManifest(name) || isSegment(name)
	})
	if err != nil {
		return fmt.Errorf("clear output directory: %w", err)
	}
	m.logger.Info("Cleared previous assets", "dir", m.dir, "files", n)
	return nil
}

// Release undoes Prepare after a failed construction: a directory created
// by Prepare is removed, a pre-existing one is left alone.
func (m *Manager) Release() {
	if !m.created {
		return
	}
	if err := os.RemoveAll(m.dir); err != nil {
		m.logger.Warn("Failed to remove output directory", "dir", m.dir, "error", err)
		return
	}
	m.created = false
}

// Remove deletes the session output. The whole directory goes when the
// output named it or Prepare created it; otherwise only the manifest and
// the segment files next to it are deleted.
func (m *Manager) Remove() error {
	if !m.dedicated && !m.created {
		n, err := m.removeAssets(func(name string) bool {
			return name == filepath.Base(m.manifest) || isSegment(name)
		})
		if err != nil {
			return fmt.Errorf("remove assets: %w", err)
		}
		m.logger.Info("Removed session assets", "dir", m.dir, "manifest", m.manifest, "files", n)
		return nil
	}

	if err := checkSafe(m.dir); err != nil {
		return err
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("remove output directory: %w", err)
	}
	m.logger.Info("Removed output directory", "dir", m.dir)
	return nil
}

// removeAssets deletes the regular files in the output directory whose name
// matches. Subdirectories are never touched.
func (m *Manager) removeAssets(match func(name string) bool) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !match(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return n, err
		}
		n++
	}
	return n, nil
}

func isManifest(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ManifestExt)
}

func isSegment(name string) bool {
	for _, prefix := range segmentPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(segmentExts, ext)
}

// Manifests lists the manifest files in the output directory.
func (m *Manager) Manifests() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isManifest(e.Name()) {
			out = append(out, filepath.Join(m.dir, e.Name()))
		}
	}
	return out, nil
}

// Validate checks that the session manifest exists and lists at least
// minVideo video representations. Manifests left by other runs in the same
// directory are reported but do not fail validation.
func (m *Manager) Validate(minVideo int) (*MPD, error) {
	if _, err := os.Stat(m.manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoManifest, err)
	}
	if manifests, err := m.Manifests(); err == nil {
		for _, other := range manifests {
			if other != m.manifest {
				m.logger.Warn("Stale manifest in output directory", "manifest", other, "dir", m.dir)
			}
		}
	}

	mpd, err := ReadManifest(m.manifest)
	if err != nil {
		return nil, err
	}
	sets, video, _ := mpd.Counts()
	if sets == 0 {
		return nil, fmt.Errorf("%w: no adaptation sets", ErrInvalidManifest)
	}
	if video < max(minVideo, 1) {
		return nil, fmt.Errorf("%w: %d video representations, want %d", ErrInvalidManifest, video, minVideo)
	}
	return mpd, nil
}

// WaitForManifest blocks until the manifest exists or ctx is done.
func (m *Manager) WaitForManifest(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	if _, err := os.Stat(m.manifest); err == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return ErrNoManifest
			}
			if event.Name == m.manifest && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if _, err := os.Stat(m.manifest); err == nil {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrNoManifest
			}
			m.logger.Warn("Manifest watcher error", "dir", m.dir, "error", err)
		}
	}
}

// checkSafe rejects directories whose removal would be destructive beyond
// the session: filesystem roots, the home directory and the working
// directory or any of its parents.
func checkSafe(dir string) error {
	clean := filepath.Clean(dir)
	if clean == filepath.Dir(clean) {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafeDir, dir)
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return fmt.Errorf("%w: %s is the home directory", ErrUnsafeDir, dir)
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(clean, wd); err == nil && !strings.HasPrefix(rel, "..") {
			return fmt.Errorf("%w: %s contains the working directory", ErrUnsafeDir, dir)
		}
	}
	return nil
}
