package assembler

import (
	"strings"

	"github.com/adrianliechti/glimpse/pkg/job"
)

// PageBoundary separates pages in Markdown output.
const PageBoundary = "\n\n---\n\n"

func renderMarkdown(pages []job.Page, o *Options) []byte {
	blocks := make([]string, 0, len(pages))

	for _, p := range pages {
		if p.Status == job.StatusFailed {
			blocks = append(blocks, "> **"+FailureSummary(p)+"**")
			continue
		}

		blocks = append(blocks, pageText(p, func(img job.Image) string {
			return "![" + markdownLabel(img.Label) + "](" + o.ImageURL(img) + ")"
		}))
	}

	return []byte(strings.Join(blocks, PageBoundary) + "\n")
}

func markdownLabel(s string) string {
	r := strings.NewReplacer("[", "\\[", "]", "\\]", "\n", " ")
	return r.Replace(s)
}
