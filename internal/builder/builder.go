// Package builder generates the static site: it renders every markdown document
// under a content root into an HTML page under the output root and writes an index
// page linking all of them.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/euforicio/sitegen/internal/renderer"
	"github.com/euforicio/sitegen/internal/scan"
)

// Renderer converts markdown source into an HTML fragment.
type Renderer interface {
	Render(path string, src []byte) renderer.Document
}

// Composer wraps an HTML fragment in the page shell.
type Composer interface {
	Compose(body string) string
}

// Builder runs full build passes. Calls to Build on one Builder are serialized.
type Builder struct {
	renderer Renderer
	composer Composer
	logger   *slog.Logger
	mu       sync.Mutex
}

// New constructs a Builder. If logger is nil, the default slog logger is used.
func New(r Renderer, c Composer, logger *slog.Logger) (*Builder, error) {
	if r == nil {
		return nil, errors.New("renderer must be provided")
	}
	if c == nil {
		return nil, errors.New("composer must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		renderer: r,
		composer: c,
		logger:   logger.With("component", "builder"),
	}, nil
}

// Build wipes outputRoot and regenerates it from the documents under contentRoot.
//
// The first read or write failure aborts the pass with an *IOError and leaves the
// partially rebuilt tree in place. ctx is only checked between documents.
func (b *Builder) Build(ctx context.Context, contentRoot, outputRoot string) (Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	contentDir, outputDir, err := resolveRoots(contentRoot, outputRoot)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	if err := os.RemoveAll(outputDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, ioError("remove", outputDir, err)
	}

	var manifest Manifest
	for src := range scan.Documents(contentDir) {
		if err := ctx.Err(); err != nil {
			return manifest, err
		}

		entry, err := b.buildPage(contentDir, outputDir, src)
		if err != nil {
			return manifest, err
		}
		manifest = append(manifest, entry)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil { //nolint:gosec // standard directory permissions
		return manifest, ioError("mkdir", outputDir, err)
	}
	indexPath := filepath.Join(outputDir, indexHTML)
	index := b.composer.Compose(RenderIndex(manifest))
	if err := os.WriteFile(indexPath, []byte(index), 0o644); err != nil { //nolint:gosec // standard file permissions
		return manifest, ioError("write", indexPath, err)
	}

	b.logger.Info("build complete",
		slog.Int("documents", len(manifest)),
		slog.String("output", outputDir),
		slog.Duration("duration", time.Since(started)))

	return manifest, nil
}

func (b *Builder) buildPage(contentDir, outputDir, src string) (Entry, error) {
	raw, err := os.ReadFile(src) //nolint:gosec // src produced by scanning contentDir
	if err != nil {
		return Entry{}, ioError("read", src, err)
	}

	doc := b.renderer.Render(src, raw)
	out := b.composer.Compose(doc.HTML)

	dest, err := destination(contentDir, outputDir, src)
	if err != nil {
		return Entry{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return Entry{}, ioError("mkdir", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, []byte(out), 0o644); err != nil { //nolint:gosec // standard file permissions
		return Entry{}, ioError("write", dest, err)
	}

	entry := EntryFor(outputDir, dest)
	entry.Source = src
	b.logger.Debug("page written", slog.String("source", src), slog.String("href", entry.Href))
	return entry, nil
}

// destination maps a document below contentDir to its page below outputDir.
func destination(contentDir, outputDir, src string) (string, error) {
	rel, err := filepath.Rel(contentDir, src)
	if err != nil {
		return "", fmt.Errorf("resolve document %s: %w", src, err)
	}
	stem := strings.TrimSuffix(rel, scan.DocumentExt)
	return filepath.Join(outputDir, stem+pageExt), nil
}

func resolveRoots(contentRoot, outputRoot string) (string, string, error) {
	if strings.TrimSpace(contentRoot) == "" {
		return "", "", errors.New("content root is required")
	}
	if strings.TrimSpace(outputRoot) == "" {
		return "", "", errors.New("output root is required")
	}
	contentDir, err := filepath.Abs(contentRoot)
	if err != nil {
		return "", "", fmt.Errorf("resolve content root: %w", err)
	}
	outputDir, err := filepath.Abs(outputRoot)
	if err != nil {
		return "", "", fmt.Errorf("resolve output root: %w", err)
	}
	if rel, err := filepath.Rel(outputDir, contentDir); err == nil &&
		(rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))) {
		return "", "", fmt.Errorf("output root %s would remove content root %s", outputDir, contentDir)
	}
	return contentDir, outputDir, nil
}
