// Package page wraps rendered markdown fragments in the fixed site shell.
package page

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/euforicio/sitegen/internal/renderer"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Shell holds the process-wide values baked into every page header and footer.
type Shell struct {
	Title          string
	StylesheetURL  string
	HomeURL        string
	HighlightStyle string
}

// DefaultShell returns the shell used by the sitegen binaries.
func DefaultShell() Shell {
	return Shell{
		Title:          "Static Generator",
		StylesheetURL:  "https://unpkg.com/@nekohack/normalize.css@1.2.1/dist/index.css",
		HomeURL:        "/",
		HighlightStyle: renderer.HighlightStyle,
	}
}

// Composer turns HTML fragments into complete documents. The header and footer are
// rendered once by NewComposer and reused for every page.
type Composer struct {
	header string
	footer string
}

// NewComposer renders the shell and returns a Composer ready for use.
func NewComposer(shell Shell) (*Composer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse shell templates: %w", err)
	}

	if strings.TrimSpace(shell.HomeURL) == "" {
		shell.HomeURL = "/"
	}

	data := struct {
		Shell
		HighlightCSS template.CSS
	}{Shell: shell}

	if shell.HighlightStyle != "" {
		css, err := highlightCSS(shell.HighlightStyle)
		if err != nil {
			return nil, err
		}
		data.HighlightCSS = template.CSS(css) //nolint:gosec // generated by chroma
	}

	var header, footer bytes.Buffer
	if err := tmpl.ExecuteTemplate(&header, "header", data); err != nil {
		return nil, fmt.Errorf("render shell header: %w", err)
	}
	if err := tmpl.ExecuteTemplate(&footer, "footer", data); err != nil {
		return nil, fmt.Errorf("render shell footer: %w", err)
	}

	return &Composer{header: header.String(), footer: footer.String()}, nil
}

// Compose wraps body between the shell header and footer.
func (c *Composer) Compose(body string) string {
	var b strings.Builder
	b.Grow(len(c.header) + len(body) + len(c.footer) + 1)
	b.WriteString(c.header)
	b.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(c.footer)
	return b.String()
}

// Header returns the rendered shell header.
func (c *Composer) Header() string { return c.header }

// Footer returns the rendered shell footer.
func (c *Composer) Footer() string { return c.footer }

func highlightCSS(name string) (string, error) {
	style := styles.Get(name)
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("generate highlight css for %s: %w", name, err)
	}
	return buf.String(), nil
}
