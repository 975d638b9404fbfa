// Package assembler renders the pages of a finished job into a single
// document.
package assembler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/grounding"
	"github.com/adrianliechti/glimpse/pkg/job"
)

var (
	ErrIncompleteJob     = errors.New("job is incomplete")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

var tablePattern = regexp.MustCompile(`(?is)<table\b.*?</table\s*>`)

type Artifact struct {
	Format job.Format

	ContentType string
	Extension   string

	Content []byte

	// Images are the regions cropped out of all pages in page order.
	Images []job.Image
}

type Options struct {
	// ImageURL resolves the reference to an extracted image. By default
	// images are embedded as data URLs.
	ImageURL func(job.Image) string

	Title string
}

type Option func(*Options)

func WithImageURL(fn func(job.Image) string) Option {
	return func(o *Options) {
		o.ImageURL = fn
	}
}

func WithTitle(title string) Option {
	return func(o *Options) {
		o.Title = title
	}
}

func ParseFormat(s string) (job.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return job.FormatMarkdown, nil

	case "html", "htm":
		return job.FormatHTML, nil

	case "docx", "word":
		return job.FormatDOCX, nil

	case "json":
		return job.FormatJSON, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// Assemble renders the job in the format it was created with.
func Assemble(j *job.Job, options ...Option) (*Artifact, error) {
	return AssembleAs(j, j.Options.Format, options...)
}

func AssembleAs(j *job.Job, format job.Format, options ...Option) (*Artifact, error) {
	o := &Options{
		ImageURL: DataURL,
		Title:    j.Source,
	}

	for _, option := range options {
		option(o)
	}

	if format == "" {
		format = job.FormatMarkdown
	}

	if j.Cancelled() || j.State() == job.StateCancelled {
		return nil, fmt.Errorf("%w: job was cancelled", ErrIncompleteJob)
	}

	pages := j.Pages()

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrIncompleteJob)
	}

	for _, p := range pages {
		if p.Status == job.StatusPending {
			return nil, fmt.Errorf("%w: page %d is pending", ErrIncompleteJob, p.Index+1)
		}
	}

	var images []job.Image

	for _, p := range pages {
		images = append(images, p.Images...)
	}

	artifact := &Artifact{
		Format: format,
		Images: images,
	}

	var err error

	switch format {
	case job.FormatMarkdown:
		artifact.ContentType = "text/markdown; charset=utf-8"
		artifact.Extension = ".md"
		artifact.Content = renderMarkdown(pages, o)

	case job.FormatHTML:
		artifact.ContentType = "text/html; charset=utf-8"
		artifact.Extension = ".html"
		artifact.Content, err = renderHTML(pages, o)

	case job.FormatJSON:
		artifact.ContentType = "application/json"
		artifact.Extension = ".json"
		artifact.Content, err = renderJSON(pages)

	case job.FormatDOCX:
		artifact.ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		artifact.Extension = ".docx"
		artifact.Content, err = renderDOCX(pages, o)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return nil, err
	}

	return artifact, nil
}

func DataURL(img job.Image) string {
	contentType := img.ContentType

	if contentType == "" {
		contentType = "image/png"
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img.Content)
}

// FailureSummary is the one line description of a failed page.
func FailureSummary(p job.Page) string {
	summary := fmt.Sprintf("[Page %d failed]", p.Index+1)

	if p.ErrorKind != "" {
		summary += " " + string(p.ErrorKind)
	}

	if p.Error != "" {
		summary += ": " + p.Error
	}

	return summary
}

// pageText returns the clean text of a page with every extracted image
// referenced at the position its tag occupied.
func pageText(p job.Page, ref func(job.Image) string) string {
	var insertions []grounding.Insertion

	for _, img := range p.Images {
		insertions = append(insertions, grounding.Insertion{
			Offset: img.Offset,
			Text:   "\n\n" + ref(img) + "\n\n",
		})
	}

	return collapseBlankLines(strings.TrimSpace(grounding.Insert(p.Text, insertions)))
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}

	return s
}

type segment struct {
	text  string
	table bool
}

// splitTables separates HTML tables from the surrounding text.
func splitTables(text string) []segment {
	var segments []segment

	last := 0

	for _, m := range tablePattern.FindAllStringIndex(text, -1) {
		if m[0] > last {
			segments = append(segments, segment{text: text[last:m[0]]})
		}

		segments = append(segments, segment{text: text[m[0]:m[1]], table: true})

		last = m[1]
	}

	if last < len(text) {
		segments = append(segments, segment{text: text[last:]})
	}

	return segments
}
