package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/pagewise/core"
)

// ErrNilDocument is returned when Normalize receives no document.
var ErrNilDocument = errors.New("document cannot be nil")

// Elements whose content is never indexed.
var skipped = map[string]bool{
	"script":       true,
	"style":        true,
	"nav":          true,
	"footer":       true,
	"header":       true,
	"aside":        true,
	"noscript":     true,
	"ac:parameter": true,
	"ac:image":     true,
	"ri:user":      true,
}

// Elements that start a new paragraph.
var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "blockquote": true, "pre": true,
	"ac:structured-macro": true, "ac:layout-section": true, "ac:task-list": true,
}

// Normalize converts the document body to text and collects its metadata.
// source_url, space_key, author and version are always present, possibly empty.
func Normalize(doc *core.Document) (*core.NormalizedDocument, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	text, err := Text(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("normalize document %s: %w", doc.ID, err)
	}
	return &core.NormalizedDocument{
		DocumentID: doc.ID,
		Text:       text,
		Metadata:   Metadata(doc),
	}, nil
}

// Metadata builds the metadata map inherited by every chunk of doc.
func Metadata(doc *core.Document) map[string]string {
	meta := map[string]string{
		core.MetaSourceURL: doc.URL,
		core.MetaSpaceKey:  doc.SpaceKey,
		core.MetaAuthor:    doc.Author,
		core.MetaVersion:   strconv.Itoa(doc.Version),
		core.MetaPageID:    doc.ID,
	}
	if doc.Title != "" {
		meta[core.MetaTitle] = doc.Title
	}
	if doc.SpaceName != "" {
		meta[core.MetaSpaceName] = doc.SpaceName
	}
	if labels := Labels(doc.Labels); len(labels) > 0 {
		meta[core.MetaLabels] = strings.Join(labels, ",")
	}
	if !doc.UpdatedAt.IsZero() {
		meta[core.MetaLastUpdated] = doc.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// Labels lowercases, trims, deduplicates and sorts labels. Empty labels are dropped.
func Labels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// SplitLabels parses the comma-joined labels metadata value.
func SplitLabels(value string) []string {
	if value == "" {
		return nil
	}
	return Labels(strings.Split(value, ","))
}

// Text converts storage-format markup to plain text. Paragraphs are separated
// by exactly one blank line and the result has no leading or trailing space.
func Text(markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	w := &writer{}
	w.walk(doc.Selection, false)
	return w.String(), nil
}

type writer struct {
	sb strings.Builder
}

func (w *writer) walk(s *goquery.Selection, pre bool) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			w.text(c.Nodes[0].Data, pre)
		case name == "#comment":
			// Code macro bodies arrive as CDATA, which the HTML parser keeps as a comment.
			data := c.Nodes[0].Data
			if strings.HasPrefix(data, "[CDATA[") {
				w.block()
				w.sb.WriteString(strings.TrimSuffix(strings.TrimPrefix(data, "[CDATA["), "]]"))
				w.block()
			}
		case skipped[name]:
		case name == "br":
			w.sb.WriteString("\n")
		case name == "li" || name == "ac:task":
			w.sb.WriteString("- ")
			w.walk(c, pre)
			w.sb.WriteString("\n")
		case name == "tr":
			c.ChildrenFiltered("td, th").Each(func(i int, cell *goquery.Selection) {
				if i > 0 {
					w.sb.WriteString(" | ")
				}
				w.walk(cell, pre)
			})
			w.sb.WriteString("\n")
		case blocks[name]:
			w.block()
			w.walk(c, pre || name == "pre")
			w.block()
		default:
			w.walk(c, pre)
		}
	})
}

func (w *writer) text(data string, pre bool) {
	if pre {
		w.sb.WriteString(data)
		return
	}
	fields := strings.Fields(data)
	if len(fields) == 0 {
		if data != "" {
			w.sb.WriteString(" ")
		}
		return
	}
	if isSpace(data[0]) {
		w.sb.WriteString(" ")
	}
	w.sb.WriteString(strings.Join(fields, " "))
	if isSpace(data[len(data)-1]) {
		w.sb.WriteString(" ")
	}
}

func (w *writer) block() {
	w.sb.WriteString("\n\n")
}

// String trims every line and collapses runs of blank lines.
func (w *writer) String() string {
	lines := strings.Split(w.sb.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == "-" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
