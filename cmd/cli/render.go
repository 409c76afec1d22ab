package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"afreeca-dl/internal/utils"
	"afreeca-dl/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Width(12)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	liveStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4136"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4136"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC40"))
)

func field(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label), value)
}

// printRecord prints a record summary, recursing into multi-part entries
func printRecord(w io.Writer, record *models.MediaRecord, indent int) {
	pad := strings.Repeat("  ", indent)

	title := titleStyle.Render(record.Title)
	if record.IsLive {
		title += " " + liveStyle.Render("LIVE")
	}
	fmt.Fprintf(w, "%s%s\n", pad, title)

	field(w, pad+"ID", record.ID)
	field(w, pad+"Kind", string(record.Kind))
	field(w, pad+"Uploader", lo.Ternary(record.UploaderID != "", fmt.Sprintf("%s (%s)", record.Uploader, record.UploaderID), record.Uploader))
	if d, ok := record.Duration.Get(); ok {
		field(w, pad+"Duration", utils.FormatDuration(time.Duration(d)*time.Second))
	}
	field(w, pad+"Uploaded", record.UploadDate.OrEmpty())
	if ts, ok := record.Timestamp.Get(); ok {
		field(w, pad+"Started", time.Unix(ts, 0).Format("2006-01-02 15:04:05"))
	}
	field(w, pad+"Thumbnail", record.Thumbnail.OrEmpty())
	field(w, pad+"URL", record.URL)
	if len(record.Sources) > 0 {
		field(w, pad+"Formats", strconv.Itoa(len(record.Sources)))
	}

	for _, entry := range record.Entries {
		fmt.Fprintln(w)
		printRecord(w, entry, indent+1)
	}
}

// printSources prints the stream sources of a record as a table
func printSources(w io.Writer, sources []models.StreamSource) {
	columns := []string{"FORMAT", "KIND", "EXT", "QUALITY", "RES", "KBPS", "URL"}
	rows := lo.Map(sources, func(s models.StreamSource, _ int) []string {
		res := ""
		if s.Width > 0 && s.Height > 0 {
			res = fmt.Sprintf("%dx%d", s.Width, s.Height)
		}
		kbps := ""
		if s.Bandwidth > 0 {
			kbps = strconv.Itoa(s.Bandwidth / 1000)
		}
		return []string{s.FormatID, string(s.Kind), s.Ext, s.Quality, res, kbps, s.URL}
	})

	widths := lo.Map(columns, func(c string, i int) int {
		return lo.Max(append(lo.Map(rows, func(r []string, _ int) int { return lipgloss.Width(r[i]) }), lipgloss.Width(c)))
	})

	header := lo.Map(columns, func(c string, i int) string {
		return headerStyle.Width(widths[i] + 2).Render(c)
	})
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, row := range rows {
		cells := lo.Map(row, func(v string, i int) string {
			return cellStyle.Width(widths[i] + 2).Render(v)
		})
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}

// collectSources returns the sources of a record and of its parts
func collectSources(record *models.MediaRecord) []models.StreamSource {
	return append(append([]models.StreamSource{}, record.Sources...), lo.FlatMap(record.Entries, func(e *models.MediaRecord, _ int) []models.StreamSource {
		return e.Sources
	})...)
}
