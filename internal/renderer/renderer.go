// Package renderer converts markdown documents to HTML fragments.
package renderer

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"
)

// HighlightStyle is the chroma style used for fenced code blocks. Highlighting emits
// CSS classes, so the page shell must embed the matching stylesheet.
const HighlightStyle = "github"

const (
	sourceExt = ".md"
	pageExt   = ".html"
)

// Metadata captures optional frontmatter found at the top of a document.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || len(m.Tags) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// Document is the rendered form of one markdown file.
type Document struct {
	HTML     string
	Metadata Metadata
}

// Service renders markdown into HTML fragments.
// It is safe for concurrent use and holds no per-document state.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// pageLinkTransformer points relative links at sibling .md documents to the .html
// pages the builder produces for them.
type pageLinkTransformer struct{}

func (t *pageLinkTransformer) Transform(node *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(rewritePageLink(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

func rewritePageLink(dest string) string {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return dest
	}

	target, suffix := dest, ""
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		target, suffix = dest[:i], dest[i:]
	}
	if !strings.HasSuffix(target, sourceExt) {
		return dest
	}
	return strings.TrimSuffix(target, sourceExt) + pageExt + suffix
}

// NewService constructs a markdown renderer.
// The renderer includes:
//   - GitHub-flavored markdown (tables, strikethrough, task lists, autolinks)
//   - footnotes and definition lists
//   - class-based syntax highlighting using HighlightStyle
//   - YAML frontmatter, stripped from the body and exposed as Metadata
//   - heading IDs with trailing anchor links
//   - raw HTML passthrough
//   - rewriting of relative .md links to .html
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(HighlightStyle),
		highlighting.WithFormatOptions(
			chromahtml.WithLineNumbers(false),
			chromahtml.WithClasses(true),
		),
	)

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(&pageLinkTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(
			// Content is authored locally and trusted.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
		),
	)

	return &Service{
		md:     md,
		logger: logger.With("component", "renderer"),
	}
}

// Render converts markdown src to an HTML fragment. It never fails: if conversion
// reports an error the escaped source is returned inside a <pre> block.
// path is only used for diagnostics.
func (s *Service) Render(path string, src []byte) Document {
	parserCtx := parser.NewContext()
	var buf bytes.Buffer

	if err := s.md.Convert(src, &buf, parser.WithContext(parserCtx)); err != nil {
		s.logger.Warn("markdown conversion failed, falling back to preformatted text",
			slog.String("path", path), slog.Any("err", err))
		return Document{HTML: "<pre>" + html.EscapeString(string(src)) + "</pre>\n"}
	}

	return Document{
		HTML:     buf.String(),
		Metadata: extractMetadata(parserCtx),
	}
}

func extractMetadata(ctx parser.Context) Metadata {
	raw, err := goldmarkmeta.TryGet(ctx)
	var meta Metadata
	if err != nil || len(raw) == 0 {
		return meta
	}

	meta.Raw = make(map[string]any, len(raw))
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			meta.Title = toString(v)
		case "description", "summary":
			meta.Description = toString(v)
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		}
	}
	return meta
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str := toString(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str := toString(v); str != "" {
			return []string{str}
		}
		return nil
	}
}
