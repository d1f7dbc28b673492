package builder

import (
	"html"
	"path/filepath"
	"strings"
)

const (
	indexHTML = "index.html"
	pageExt   = ".html"
	linkSep   = "<br />\n"
)

// Entry is one page produced by a build pass.
type Entry struct {
	Source string // document path under the content root
	Dest   string // written file under the output root
	Href   string // root-relative URL, always starting with "/"
	Title  string // Href without the leading "/" and the page extension
}

// Manifest lists the pages of one build pass in discovery order.
type Manifest []Entry

// Hrefs returns the root-relative URLs of every entry.
func (m Manifest) Hrefs() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Href
	}
	return out
}

// EntryFor derives the link fields for a page written to dest below outputRoot.
func EntryFor(outputRoot, dest string) Entry {
	rel, err := filepath.Rel(outputRoot, dest)
	if err != nil {
		rel = strings.TrimPrefix(dest, outputRoot)
	}
	href := "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
	title := strings.TrimSuffix(strings.TrimPrefix(href, "/"), pageExt)
	return Entry{Dest: dest, Href: href, Title: title}
}

// RenderIndex builds the index body: one anchor per entry, in manifest order,
// separated by line breaks. An empty manifest yields an empty body.
func RenderIndex(m Manifest) string {
	links := make([]string, 0, len(m))
	for _, e := range m {
		links = append(links, `<a href="`+html.EscapeString(e.Href)+`">`+html.EscapeString(e.Title)+`</a>`)
	}
	return strings.Join(links, linkSep)
}
