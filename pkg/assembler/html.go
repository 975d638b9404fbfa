package assembler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/job"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const stylesheet = `body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.5; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
section.page { margin-bottom: 2rem; }
hr.page-break { border: 0; border-top: 1px dashed #8c959f; margin: 2rem 0; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #d0d7de; padding: 4px 8px; vertical-align: top; }
img { max-width: 100%; }
.failed { border-left: 4px solid #cf222e; background: #ffebe9; padding: 0.5rem 1rem; }`

func renderHTML(pages []job.Page, o *Options) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	buf.WriteString("<title>" + html.EscapeString(o.Title) + "</title>\n")
	buf.WriteString("<style>\n" + stylesheet + "\n</style>\n")
	buf.WriteString("</head>\n<body>\n")

	markdown := newHTMLMarkdown()

	for i, p := range pages {
		if i > 0 {
			buf.WriteString("<hr class=\"page-break\">\n")
		}

		fmt.Fprintf(&buf, "<section class=\"page\" id=\"page-%d\">\n", p.Index+1)

		if p.Status == job.StatusFailed {
			buf.WriteString("<p class=\"failed\"><strong>" + html.EscapeString(FailureSummary(p)) + "</strong></p>\n")
		} else {
			text := pageText(p, func(img job.Image) string {
				return "![" + markdownLabel(img.Label) + "](<" + o.ImageURL(img) + ">)"
			})

			for _, s := range splitTables(text) {
				if s.table {
					buf.WriteString(normalizeTable(s.text))
					buf.WriteString("\n")

					continue
				}

				if err := markdown.Convert([]byte(s.text), &buf); err != nil {
					return nil, err
				}
			}
		}

		buf.WriteString("</section>\n")
	}

	buf.WriteString("</body>\n</html>\n")

	return buf.Bytes(), nil
}

// newHTMLMarkdown renders model Markdown with line breaks kept. Raw HTML
// outside of tables is written as escaped text.
func newHTMLMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			renderer.WithNodeRenderers(util.Prioritized(&escapedHTML{}, 100)),
		),
	)
}

type escapedHTML struct{}

func (r *escapedHTML) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
}

func (r *escapedHTML) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}

	n := node.(*ast.RawHTML)

	for i := 0; i < n.Segments.Len(); i++ {
		segment := n.Segments.At(i)
		w.WriteString(html.EscapeString(string(segment.Value(source))))
	}

	return ast.WalkSkipChildren, nil
}

func (r *escapedHTML) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	n := node.(*ast.HTMLBlock)

	var lines []string

	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		lines = append(lines, strings.TrimRight(string(line.Value(source)), " \t\r\n"))
	}

	if n.HasClosure() {
		lines = append(lines, strings.TrimRight(string(n.ClosureLine.Value(source)), " \t\r\n"))
	}

	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}

	w.WriteString("<p>" + strings.Join(lines, "<br>\n") + "</p>\n")

	return ast.WalkSkipChildren, nil
}

// normalizeTable reparses a table fragment so unbalanced markup from the
// model cannot leak into the rest of the document.
func normalizeTable(fragment string) string {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)

	if err != nil {
		return "<p>" + html.EscapeString(fragment) + "</p>"
	}

	var buf bytes.Buffer

	for _, n := range nodes {
		stripUnsafe(n)

		if err := html.Render(&buf, n); err != nil {
			return "<p>" + html.EscapeString(fragment) + "</p>"
		}
	}

	return buf.String()
}

// stripUnsafe removes scripts and event handler attributes from a table.
func stripUnsafe(n *html.Node) {
	var attrs []html.Attribute

	for _, a := range n.Attr {
		if strings.HasPrefix(strings.ToLower(a.Key), "on") {
			continue
		}

		attrs = append(attrs, a)
	}

	n.Attr = attrs

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling

		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			n.RemoveChild(c)
		} else {
			stripUnsafe(c)
		}

		c = next
	}
}
