// Package report renders request statistics for operators.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/kalambet/gettor/internal/model"
)

// Summary aggregates stats records along each dimension.
type Summary struct {
	Total      int64
	ByChannel  map[string]int64
	ByCommand  map[string]int64
	ByPlatform map[string]int64
	ByLocale   map[string]int64
}

// Summarize folds records into per-dimension totals. Help requests carry
// no platform and are counted under "none".
func Summarize(records []model.StatsRecord) Summary {
	s := Summary{
		ByChannel:  make(map[string]int64),
		ByCommand:  make(map[string]int64),
		ByPlatform: make(map[string]int64),
		ByLocale:   make(map[string]int64),
	}
	for _, r := range records {
		s.Total += r.Count
		s.ByChannel[r.Channel] += r.Count
		s.ByCommand[r.Command] += r.Count
		s.ByPlatform[orNone(r.Platform)] += r.Count
		s.ByLocale[r.Locale] += r.Count
	}
	return s
}

// WriteText prints records as an aligned table.
func WriteText(w io.Writer, records []model.StatsRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCHANNEL\tCOMMAND\tPLATFORM\tLOCALE\tCOUNT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", r.Date, r.Channel, r.Command, orNone(r.Platform), r.Locale, r.Count)
	}
	fmt.Fprintf(tw, "\t\t\t\tTOTAL\t%d\n", Summarize(records).Total)
	return tw.Flush()
}

// MarkdownWriter renders a statistics report in Markdown.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to w.
func NewMarkdownWriter(w io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: w}
}

// Write renders records collected between from and to (YYYYMMDD, either
// may be empty).
func (w *MarkdownWriter) Write(from, to string, records []model.StatsRecord) error {
	md := markdown.NewMarkdown(w.output)
	sum := Summarize(records)

	md.H1("GetTor Request Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Period", period(from, to)},
			{"Requests", strconv.FormatInt(sum.Total, 10)},
		},
	})
	md.PlainText("")

	if sum.Total == 0 {
		md.Note("No requests were fulfilled in this period.")
		return md.Build()
	}

	writeDimension(md, "By Channel", sum.ByChannel)
	writeDimension(md, "By Command", sum.ByCommand)
	writeDimension(md, "By Platform", sum.ByPlatform)
	writePlatformChart(md, sum.ByPlatform)
	writeDimension(md, "By Locale", sum.ByLocale)

	md.H2("Daily Counters")
	md.PlainText("")
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.Date, r.Channel, r.Command, orNone(r.Platform), r.Locale, strconv.FormatInt(r.Count, 10)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Date", "Channel", "Command", "Platform", "Locale", "Count"},
		Rows:   rows,
	})

	return md.Build()
}

func writeDimension(md *markdown.Markdown, title string, counts map[string]int64) {
	md.H2(title)
	md.PlainText("")
	rows := make([][]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		rows = append(rows, []string{k, strconv.FormatInt(counts[k], 10)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Value", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writePlatformChart(md *markdown.Markdown, counts map[string]int64) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Requests by Platform"),
		piechart.WithShowData(true),
	)
	for _, k := range sortedKeys(counts) {
		chart.LabelAndIntValue(k, uint64(counts[k]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// sortedKeys orders by count descending, then name.
func sortedKeys(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func period(from, to string) string {
	switch {
	case from == "" && to == "":
		return "all time"
	case from == to:
		return from
	case from == "":
		return "until " + to
	case to == "":
		return "since " + from
	default:
		return from + " to " + to
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
