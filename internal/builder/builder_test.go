package builder_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/euforicio/sitegen/internal/builder"
	"github.com/euforicio/sitegen/internal/page"
	"github.com/euforicio/sitegen/internal/renderer"
)

func newTestBuilder(t *testing.T) (*builder.Builder, *page.Composer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	composer, err := page.NewComposer(page.DefaultShell())
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	b, err := builder.New(renderer.NewService(logger), composer, logger)
	if err != nil {
		t.Fatalf("builder.New: %v", err)
	}
	return b, composer
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// snapshot maps every file under root (slash-separated, root-relative) to its contents.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func TestBuildConcreteScenario(t *testing.T) {
	t.Parallel()
	b, composer := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "a.md"), "# Hi")
	writeFile(t, filepath.Join(content, "sub", "b.md"), "text")

	manifest, err := b.Build(context.Background(), content, public)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := manifest.Hrefs(), []string{"/a.html", "/sub/b.html"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected manifest hrefs: %v", got)
	}
	if manifest[1].Title != "sub/b" {
		t.Fatalf("unexpected title: %q", manifest[1].Title)
	}

	a := readFile(t, filepath.Join(public, "a.html"))
	if !strings.HasPrefix(a, composer.Header()) || !strings.HasSuffix(a, composer.Footer()) {
		t.Fatalf("a.html is not wrapped in the shell")
	}
	if !strings.Contains(a, "<h1") || !strings.Contains(a, "Hi") {
		t.Fatalf("a.html missing heading: %s", a)
	}

	sub := readFile(t, filepath.Join(public, "sub", "b.html"))
	if !strings.Contains(sub, "<p>text</p>") {
		t.Fatalf("sub/b.html missing paragraph: %s", sub)
	}

	index := readFile(t, filepath.Join(public, "index.html"))
	wantBody := `<a href="/a.html">a</a><br />` + "\n" + `<a href="/sub/b.html">sub/b</a>`
	if index != composer.Compose(wantBody) {
		t.Fatalf("unexpected index:\n%s", index)
	}

	if got := sortedKeys(snapshot(t, public)); !slices.Equal(got, []string{"a.html", "index.html", "sub/b.html"}) {
		t.Fatalf("unexpected output tree: %v", got)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "one.md"), "# One\n\n```go\nfunc main() {}\n```\n")
	writeFile(t, filepath.Join(content, "nested", "deep", "two.md"), "- a\n- b\n")

	if _, err := b.Build(context.Background(), content, public); err != nil {
		t.Fatalf("first build: %v", err)
	}
	first := snapshot(t, public)
	if _, err := b.Build(context.Background(), content, public); err != nil {
		t.Fatalf("second build: %v", err)
	}
	second := snapshot(t, public)

	if len(first) != len(second) {
		t.Fatalf("file sets differ: %v vs %v", sortedKeys(first), sortedKeys(second))
	}
	for name, data := range first {
		if second[name] != data {
			t.Fatalf("file %s differs between builds", name)
		}
	}
}

func TestBuildRemovesStalePages(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "keep.md"), "keep")
	writeFile(t, filepath.Join(content, "old", "gone.md"), "gone")
	writeFile(t, filepath.Join(public, "unrelated.txt"), "not produced by a build")

	if _, err := b.Build(context.Background(), content, public); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(content, "old")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := b.Build(context.Background(), content, public); err != nil {
		t.Fatalf("second build: %v", err)
	}

	if got := sortedKeys(snapshot(t, public)); !slices.Equal(got, []string{"index.html", "keep.html"}) {
		t.Fatalf("expected stale output removed, got %v", got)
	}
	if strings.Contains(readFile(t, filepath.Join(public, "index.html")), "gone") {
		t.Fatalf("index still links removed page")
	}
}

func TestBuildIgnoresNonDocuments(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "page.md"), "page")
	writeFile(t, filepath.Join(content, "image.png"), "png")
	writeFile(t, filepath.Join(content, "docs", "notes.txt"), "txt")
	writeFile(t, filepath.Join(content, "docs", "readme.markdown"), "other ext")

	manifest, err := b.Build(context.Background(), content, public)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(manifest) != 1 {
		t.Fatalf("expected a single page, got %v", manifest.Hrefs())
	}
	if got := sortedKeys(snapshot(t, public)); !slices.Equal(got, []string{"index.html", "page.html"}) {
		t.Fatalf("unexpected output tree: %v", got)
	}
}

func TestBuildEmptyContentRoot(t *testing.T) {
	t.Parallel()
	b, composer := newTestBuilder(t)
	root := t.TempDir()

	for _, content := range []string{filepath.Join(root, "empty"), filepath.Join(root, "missing")} {
		public := filepath.Join(root, "public-"+filepath.Base(content))
		if content == filepath.Join(root, "empty") {
			if err := os.MkdirAll(content, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
		}

		manifest, err := b.Build(context.Background(), content, public)
		if err != nil {
			t.Fatalf("Build(%s): %v", content, err)
		}
		if len(manifest) != 0 {
			t.Fatalf("expected empty manifest, got %v", manifest.Hrefs())
		}
		files := snapshot(t, public)
		if got := sortedKeys(files); !slices.Equal(got, []string{"index.html"}) {
			t.Fatalf("expected only index.html, got %v", got)
		}
		if files["index.html"] != composer.Compose("") {
			t.Fatalf("expected index without links, got %s", files["index.html"])
		}
	}
}

func TestBuildIndexLinksResolve(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	for _, name := range []string{"z.md", "a.md", "m/n.md", "m/o/p.md", "b/c.md"} {
		writeFile(t, filepath.Join(content, filepath.FromSlash(name)), "# "+name)
	}

	manifest, err := b.Build(context.Background(), content, public)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(manifest) != 5 {
		t.Fatalf("expected 5 pages, got %d", len(manifest))
	}

	index := readFile(t, filepath.Join(public, "index.html"))
	last := -1
	for _, e := range manifest {
		if !strings.HasPrefix(e.Href, "/") {
			t.Fatalf("href %q is not root-relative", e.Href)
		}
		if _, err := os.Stat(filepath.Join(public, filepath.FromSlash(e.Href))); err != nil {
			t.Fatalf("href %q does not resolve: %v", e.Href, err)
		}
		anchor := `<a href="` + e.Href + `">` + e.Title + `</a>`
		if strings.Count(index, anchor) != 1 {
			t.Fatalf("expected exactly one %s in index", anchor)
		}
		pos := strings.Index(index, anchor)
		if pos < last {
			t.Fatalf("index order does not follow manifest order at %s", e.Href)
		}
		last = pos
	}
	if got := strings.Count(index, "<a href=\"/") - 1; got != len(manifest) {
		// one extra root-relative anchor is the shell's Home link
		t.Fatalf("expected %d page links, got %d", len(manifest), got)
	}
}

func TestBuildIndexDocumentIsReplacedBySynthesizedIndex(t *testing.T) {
	t.Parallel()
	b, composer := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "index.md"), "# Custom landing")

	manifest, err := b.Build(context.Background(), content, public)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	index := readFile(t, filepath.Join(public, "index.html"))
	if index != composer.Compose(builder.RenderIndex(manifest)) {
		t.Fatalf("expected synthesized index to win, got %s", index)
	}
}

func TestBuildRejectsOverlappingRoots(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "site", "content")
	writeFile(t, filepath.Join(content, "a.md"), "a")

	for _, out := range []string{content, filepath.Join(root, "site"), root} {
		if _, err := b.Build(context.Background(), content, out); err == nil {
			t.Fatalf("expected error for output %s", out)
		}
	}
	if _, err := os.Stat(filepath.Join(content, "a.md")); err != nil {
		t.Fatalf("content must survive rejected builds: %v", err)
	}

	if _, err := b.Build(context.Background(), "", filepath.Join(root, "public")); err == nil {
		t.Fatalf("expected error for empty content root")
	}
}

func TestBuildDirectoryFailureIsIOError(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	// a.md is written as public/a.html before a.html/b.md needs public/a.html/ as a directory.
	writeFile(t, filepath.Join(content, "a.md"), "a")
	writeFile(t, filepath.Join(content, "a.html", "b.md"), "b")

	manifest, err := b.Build(context.Background(), content, public)
	var ioErr *builder.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *builder.IOError, got %v", err)
	}
	if ioErr.Op != "mkdir" {
		t.Fatalf("expected mkdir failure, got %q", ioErr.Op)
	}
	if got := manifest.Hrefs(); !slices.Equal(got, []string{"/a.html"}) {
		t.Fatalf("unexpected partial manifest: %v", got)
	}
}

func TestBuildRemoveFailureIsIOError(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	writeFile(t, filepath.Join(content, "a.md"), "a")
	blocker := filepath.Join(root, "blocker")
	writeFile(t, blocker, "a regular file where a directory is needed")

	_, err := b.Build(context.Background(), content, filepath.Join(blocker, "public"))
	var ioErr *builder.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *builder.IOError, got %v", err)
	}
	if ioErr.Op != "remove" && ioErr.Op != "mkdir" {
		t.Fatalf("expected remove or mkdir failure, got %q", ioErr.Op)
	}
}

func TestBuildReadFailureAborts(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	public := filepath.Join(root, "public")
	writeFile(t, filepath.Join(content, "a.md"), "a")
	locked := filepath.Join(content, "b.md")
	writeFile(t, locked, "b")
	writeFile(t, filepath.Join(content, "c.md"), "c")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	manifest, err := b.Build(context.Background(), content, public)
	var ioErr *builder.IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "read" || ioErr.Path != locked {
		t.Fatalf("expected read IOError for %s, got %v", locked, err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected wrapped permission error, got %v", err)
	}
	if len(manifest) != 1 {
		t.Fatalf("expected pages before the failure only, got %v", manifest.Hrefs())
	}
	if _, err := os.Stat(filepath.Join(public, "c.html")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("build must stop at the first failure")
	}
	if _, err := os.Stat(filepath.Join(public, "index.html")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("index must not be written after a failure")
	}
}

func TestBuildStopsOnCanceledContext(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	writeFile(t, filepath.Join(content, "a.md"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, content, filepath.Join(root, "public")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	composer, err := page.NewComposer(page.DefaultShell())
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	if _, err := builder.New(nil, composer, nil); err == nil {
		t.Fatalf("expected error for nil renderer")
	}
	if _, err := builder.New(renderer.NewService(nil), nil, nil); err == nil {
		t.Fatalf("expected error for nil composer")
	}
}
