package assembler

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/job"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	extast "github.com/yuin/goldmark/extension/ast"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// English Metric Units per pixel at 96 DPI
	emuPerPixel = 9525

	// 6 inch text width
	maxImageWidth = 5486400
)

var mediaPattern = regexp.MustCompile(`^media:(\d+)$`)

type docxWriter struct {
	body strings.Builder

	markdown goldmark.Markdown

	media []job.Image
}

func renderDOCX(pages []job.Page, o *Options) ([]byte, error) {
	w := &docxWriter{
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
	}

	if o.Title != "" {
		w.paragraph("Title", w.run(o.Title, runStyle{}))
	}

	for i, p := range pages {
		if i > 0 {
			w.pageBreak()
		}

		if p.Status == job.StatusFailed {
			w.paragraph("Quote", w.run(FailureSummary(p), runStyle{bold: true}))
			continue
		}

		source := pageText(p, func(img job.Image) string {
			w.media = append(w.media, img)
			return fmt.Sprintf("![%s](media:%d)", markdownLabel(img.Label), len(w.media)-1)
		})

		for _, s := range splitTables(source) {
			if s.table {
				w.htmlTable(s.text)
				continue
			}

			w.markdownBlocks(s.text)
		}
	}

	return w.pack()
}

func (w *docxWriter) markdownBlocks(source string) {
	src := []byte(source)
	doc := w.markdown.Parser().Parse(text.NewReader(src))

	w.blocks(doc, src, "")
}

func (w *docxWriter) blocks(node ast.Node, source []byte, style string) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			w.paragraph("Heading"+strconv.Itoa(min(n.Level, 6)), w.inlines(n, source, runStyle{}))

		case *ast.Paragraph:
			w.paragraph(style, w.inlines(n, source, runStyle{}))

		case *ast.TextBlock:
			w.paragraph(style, w.inlines(n, source, runStyle{}))

		case *ast.List:
			w.list(n, source)

		case *ast.Blockquote:
			w.blocks(n, source, "Quote")

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := child.Lines()

			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				w.paragraph("Code", w.run(strings.TrimRight(string(line.Value(source)), "\r\n"), runStyle{}))
			}

		case *ast.HTMLBlock:
			lines := child.Lines()

			var sb strings.Builder

			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(source))
			}

			w.paragraph(style, w.run(htmlText(sb.String()), runStyle{}))

		case *ast.ThematicBreak:
			w.paragraph(style, "")

		case *extast.Table:
			w.markdownTable(n, source)

		default:
			w.blocks(child, source, style)
		}
	}
}

func (w *docxWriter) list(list *ast.List, source []byte) {
	number := list.Start

	if number == 0 {
		number = 1
	}

	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "

		if list.IsOrdered() {
			marker = strconv.Itoa(number) + ". "
			number++
		}

		first := true

		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if nested, ok := child.(*ast.List); ok {
				w.list(nested, source)
				continue
			}

			runs := w.inlines(child, source, runStyle{})

			if first {
				runs = w.run(marker, runStyle{}) + runs
				first = false
			}

			w.paragraph("ListParagraph", runs)
		}
	}
}

type runStyle struct {
	bold   bool
	italic bool
	strike bool
	code   bool
}

func (w *docxWriter) inlines(node ast.Node, source []byte, style runStyle) string {
	var sb strings.Builder

	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			sb.WriteString(w.run(string(n.Segment.Value(source)), style))

			if n.HardLineBreak() {
				sb.WriteString("<w:r><w:br/></w:r>")
			} else if n.SoftLineBreak() {
				sb.WriteString(w.run(" ", style))
			}

		case *ast.String:
			sb.WriteString(w.run(string(n.Value), style))

		case *ast.CodeSpan:
			s := style
			s.code = true

			sb.WriteString(w.inlines(n, source, s))

		case *ast.Emphasis:
			s := style

			if n.Level >= 2 {
				s.bold = true
			} else {
				s.italic = true
			}

			sb.WriteString(w.inlines(n, source, s))

		case *extast.Strikethrough:
			s := style
			s.strike = true

			sb.WriteString(w.inlines(n, source, s))

		case *ast.Image:
			if m := mediaPattern.FindStringSubmatch(string(n.Destination)); m != nil {
				index, _ := strconv.Atoi(m[1])

				if index < len(w.media) {
					sb.WriteString(w.drawing(index))
					continue
				}
			}

			sb.WriteString(w.inlines(n, source, style))

		case *ast.RawHTML:
			var raw strings.Builder

			for i := 0; i < n.Segments.Len(); i++ {
				segment := n.Segments.At(i)
				raw.Write(segment.Value(source))
			}

			if strings.EqualFold(strings.TrimSpace(raw.String()), "<br>") || strings.EqualFold(strings.TrimSpace(raw.String()), "<br/>") {
				sb.WriteString("<w:r><w:br/></w:r>")
			}

		default:
			sb.WriteString(w.inlines(child, source, style))
		}
	}

	return sb.String()
}

func (w *docxWriter) run(s string, style runStyle) string {
	if s == "" {
		return ""
	}

	var props strings.Builder

	if style.bold {
		props.WriteString("<w:b/>")
	}

	if style.italic {
		props.WriteString("<w:i/>")
	}

	if style.strike {
		props.WriteString("<w:strike/>")
	}

	if style.code {
		props.WriteString(`<w:rFonts w:ascii="Consolas" w:hAnsi="Consolas"/>`)
	}

	var sb strings.Builder

	sb.WriteString("<w:r>")

	if props.Len() > 0 {
		sb.WriteString("<w:rPr>" + props.String() + "</w:rPr>")
	}

	sb.WriteString(`<w:t xml:space="preserve">` + escapeXML(s) + "</w:t></w:r>")

	return sb.String()
}

func (w *docxWriter) paragraph(style, runs string) {
	w.body.WriteString("<w:p>")

	if style != "" {
		w.body.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}

	w.body.WriteString(runs)
	w.body.WriteString("</w:p>")
}

func (w *docxWriter) pageBreak() {
	w.body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
}

func (w *docxWriter) drawing(index int) string {
	img := w.media[index]

	cx := int64(max(img.Width, 1)) * emuPerPixel
	cy := int64(max(img.Height, 1)) * emuPerPixel

	if cx > maxImageWidth {
		cy = cy * maxImageWidth / cx
		cx = maxImageWidth
	}

	id := index + 1
	name := fmt.Sprintf("image%d.png", id)

	return fmt.Sprintf(`<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="%s" descr="%s"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="rIdImage%d"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, id, name, escapeXML(img.Label), id, name, id, cx, cy)
}

func (w *docxWriter) markdownTable(table *extast.Table, source []byte) {
	var rows [][]string

	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string

		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, w.inlines(cell, source, runStyle{bold: row.Kind() == extast.KindTableHeader}))
		}

		rows = append(rows, cells)
	}

	w.table(rows)
}

func (w *docxWriter) htmlTable(fragment string) {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)

	if err != nil {
		w.paragraph("", w.run(htmlText(fragment), runStyle{}))
		return
	}

	var rows [][]string

	var walk func(n *html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string

			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
					continue
				}

				style := runStyle{bold: c.DataAtom == atom.Th}
				cells = append(cells, w.run(strings.TrimSpace(nodeText(c)), style))

				// merged cells are repeated empty so that columns stay aligned
				for range colspan(c) - 1 {
					cells = append(cells, "")
				}
			}

			rows = append(rows, cells)

			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range nodes {
		walk(n)
	}

	w.table(rows)
}

func (w *docxWriter) table(rows [][]string) {
	columns := 0

	for _, r := range rows {
		columns = max(columns, len(r))
	}

	if columns == 0 {
		return
	}

	w.body.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid>`)

	for range columns {
		w.body.WriteString(`<w:gridCol/>`)
	}

	w.body.WriteString(`</w:tblGrid>`)

	for _, r := range rows {
		w.body.WriteString("<w:tr>")

		for i := range columns {
			runs := ""

			if i < len(r) {
				runs = r[i]
			}

			w.body.WriteString("<w:tc><w:p>" + runs + "</w:p></w:tc>")
		}

		w.body.WriteString("</w:tr>")
	}

	w.body.WriteString("</w:tbl>")

	// a table must be followed by a paragraph
	w.paragraph("", "")
}

func (w *docxWriter) pack() ([]byte, error) {
	var buf bytes.Buffer

	z := zip.NewWriter(&buf)

	var rels strings.Builder

	rels.WriteString(xml.Header)
	rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	rels.WriteString(`<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)

	for i := range w.media {
		fmt.Fprintf(&rels, `<Relationship Id="rIdImage%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image%d.png"/>`, i+1, i+1)
	}

	rels.WriteString(`</Relationships>`)

	parts := []struct {
		name    string
		content []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/document.xml", []byte(documentHeader + w.body.String() + documentFooter)},
		{"word/_rels/document.xml.rels", []byte(rels.String())},
		{"word/styles.xml", []byte(stylesXML)},
	}

	for i, img := range w.media {
		parts = append(parts, struct {
			name    string
			content []byte
		}{fmt.Sprintf("word/media/image%d.png", i+1), img.Content})
	}

	for _, p := range parts {
		f, err := z.Create(p.name)

		if err != nil {
			return nil, err
		}

		if _, err := f.Write(p.content); err != nil {
			return nil, err
		}
	}

	if err := z.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))

	return buf.String()
}

func htmlText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})

	if err != nil {
		return fragment
	}

	var parts []string

	for _, n := range nodes {
		parts = append(parts, nodeText(n))
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var sb strings.Builder

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			sb.WriteString(" ")
			continue
		}

		sb.WriteString(nodeText(c))
	}

	return sb.String()
}

func colspan(n *html.Node) int {
	for _, a := range n.Attr {
		if a.Key == "colspan" {
			if v, err := strconv.Atoi(a.Val); err == nil && v > 1 {
				return min(v, 64)
			}
		}
	}

	return 1
}

const documentHeader = xml.Header + `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"><w:body>`

const documentFooter = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`

const contentTypesXML = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Default Extension="png" ContentType="image/png"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

const packageRelsXML = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`
