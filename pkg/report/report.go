// Package report turns a finished session into the artifacts a reader
// actually opens: the standalone HTML report, the Vega-Lite chart bundle
// embedded in it, the executive summary, the roadshow ZIP, and the demo
// metrics those artifacts quote. The builders are pure functions over
// session rows; only the Renderer and the rehearsal log touch the
// filesystem.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
)

// safeSessionPattern collapses anything outside the filename-safe
// alphabet so a session id can name a file without escaping.
var safeSessionPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SafeSessionID maps a session id onto [a-zA-Z0-9_-], replacing every
// run of other characters with a single underscore. Artifacts derive
// their file names and the roadshow package root from this form.
func SafeSessionID(sessionID string) string {
	if sessionID == "" {
		return "unknown"
	}
	return safeSessionPattern.ReplaceAllString(sessionID, "_")
}

// Renderer writes standalone HTML reports under a fixed directory.
type Renderer struct {
	dir string
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Path returns the on-disk location of the HTML report for a session.
func (r *Renderer) Path(sessionID string) string {
	return filepath.Join(r.dir, SafeSessionID(sessionID)+".html")
}

// WriteHTML renders the markdown report into a full HTML document and
// writes it under the reports directory, returning the file path. No
// chart bundle is embedded here: the engine calls this at finalize,
// before the session row carries the metrics the charts quote. Read
// paths re-render with WriteDocumentHTML once the metrics exist.
func (r *Renderer) WriteHTML(sessionID, reportMarkdown string, profile models.UserProfile) (string, error) {
	return r.WriteDocumentHTML(DocumentInputs{
		SessionID: sessionID,
		Markdown:  reportMarkdown,
		Profile:   profile,
	})
}

// WriteDocumentHTML renders the full document, chart bundle included
// when the inputs carry one, and persists it at Path(sessionID).
func (r *Renderer) WriteDocumentHTML(in DocumentInputs) (string, error) {
	doc := BuildDocument(in)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir %s: %w", r.dir, err)
	}
	path := r.Path(in.SessionID)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

// ReadHTML returns the previously written document for a session, or
// os.ErrNotExist when finalize never produced one.
func (r *Renderer) ReadHTML(sessionID string) ([]byte, error) {
	return os.ReadFile(r.Path(sessionID))
}

// PruneOlderThan removes report files last modified before cutoff and
// returns how many were deleted. A missing reports directory is not an
// error; nothing was ever rendered.
func (r *Renderer) PruneOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read reports dir %s: %w", r.dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".html" {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove report %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}
