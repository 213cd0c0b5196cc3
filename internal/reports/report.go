// Package reports renders the per-month HTML report: a processing summary
// with an interactive satellite-usage dashboard and a static usage chart.
package reports

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"skymosaic/internal/logger"
	"skymosaic/internal/models"
)

// Month renders the report for one processed month. It returns the complete
// HTML document and a PNG usage chart; the chart may be empty when no tile
// succeeded.
func Month(prov models.MonthProvenance) (htmlDoc []byte, chartPNG []byte, err error) {
	md := buildMarkdown(prov)
	body := markdownToHTML(md)

	dashboard, err := usageDashboard(prov.Usage)
	if err != nil {
		logger.Warnf("Usage dashboard failed: %v", err)
		dashboard = "<p>Usage dashboard unavailable</p>"
	}

	if len(prov.Usage) > 0 {
		chartPNG, err = usageChartPNG(prov.Usage)
		if err != nil {
			logger.Warnf("Usage chart failed: %v", err)
			chartPNG = nil
		}
	}

	doc := buildDocument(fmt.Sprintf("Mosaic Report %04d-%02d", prov.Year, prov.Month), body, dashboard)
	return []byte(doc), chartPNG, nil
}

// buildMarkdown writes the textual summary: outcome counts by status and
// the satellite usage table.
func buildMarkdown(prov models.MonthProvenance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mosaic Report %04d-%02d\n\n", prov.Year, prov.Month)
	fmt.Fprintf(&b, "Job `%s`, generated %s.\n\n", prov.JobID, prov.Generated.Format("2006-01-02 15:04 UTC"))

	statusCounts := map[models.TileStatus]int{}
	for _, tp := range prov.Tiles {
		statusCounts[tp.Status]++
	}
	ok := statusCounts[models.StatusOK]
	fmt.Fprintf(&b, "## Tiles\n\n%d of %d tiles succeeded.\n\n", ok, len(prov.Tiles))
	if len(statusCounts) > 1 || ok == 0 {
		b.WriteString("| Status | Tiles |\n|---|---|\n")
		for _, status := range orderedStatuses(statusCounts) {
			fmt.Fprintf(&b, "| %s | %d |\n", status, statusCounts[status])
		}
		b.WriteString("\n")
	}

	if len(prov.Usage) > 0 {
		b.WriteString("## Satellite usage\n\n| Satellite | Dominant tiles |\n|---|---|\n")
		for _, source := range orderedSources(prov.Usage) {
			fmt.Fprintf(&b, "| %s | %d |\n", source, prov.Usage[source])
		}
		b.WriteString("\n")
	}

	failed := failedTiles(prov)
	if len(failed) > 0 {
		b.WriteString("## Failed tiles\n\n| Tile | Status | Detail |\n|---|---|---|\n")
		for _, tp := range failed {
			detail := tp.Error
			if detail == "" {
				detail = tp.ValidationReason
			}
			fmt.Fprintf(&b, "| %04d | %s | %s |\n", tp.TileIndex, tp.Status, detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func markdownToHTML(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.Tables
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.Render(doc, renderer))
}

func orderedStatuses(counts map[models.TileStatus]int) []models.TileStatus {
	statuses := make([]models.TileStatus, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}

func orderedSources(usage map[string]int) []string {
	sources := make([]string, 0, len(usage))
	for s := range usage {
		sources = append(sources, s)
	}
	// Most used first, alphabetical within ties.
	sort.Slice(sources, func(i, j int) bool {
		if usage[sources[i]] != usage[sources[j]] {
			return usage[sources[i]] > usage[sources[j]]
		}
		return sources[i] < sources[j]
	})
	return sources
}

func failedTiles(prov models.MonthProvenance) []models.TileProvenance {
	var failed []models.TileProvenance
	for _, tp := range prov.Tiles {
		if tp.Status != models.StatusOK {
			failed = append(failed, tp)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].TileIndex < failed[j].TileIndex })
	return failed
}

// buildDocument assembles the final HTML page.
func buildDocument(title, body, dashboard string) string {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<meta charset=\"utf-8\">\n<title>%s</title>\n", title)
	b.WriteString("<style>\n")
	b.WriteString(`body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 960px; margin: 2em auto; padding: 0 1em; color: #222; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
th { background: #f4f4f4; }
h1, h2 { border-bottom: 1px solid #eee; padding-bottom: 0.2em; }
`)
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n<h2>Usage dashboard</h2>\n")
	b.WriteString(dashboard)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
