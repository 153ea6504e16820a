package scraper

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

// htmlDoc wraps one fetched page for selector resolution. The goquery
// document is built eagerly; the xpath tree only when a config asks for it.
type htmlDoc struct {
	raw  []byte
	doc  *goquery.Document
	root *html.Node
}

func parseHTML(body []byte) (*htmlDoc, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &htmlDoc{raw: body, doc: doc}, nil
}

// texts resolves a selector to the trimmed text (or attribute value) of
// every matching element, dropping empties.
func (d *htmlDoc) texts(sel mountains.Selector) []string {
	var out []string
	switch sel.Type {
	case "xpath":
		if d.root == nil {
			root, err := htmlquery.Parse(bytes.NewReader(d.raw))
			if err != nil {
				return nil
			}
			d.root = root
		}
		nodes, err := htmlquery.QueryAll(d.root, sel.Query)
		if err != nil {
			return nil
		}
		for _, n := range nodes {
			if t := strings.TrimSpace(htmlquery.InnerText(n)); t != "" {
				out = append(out, t)
			}
		}
	default: // css
		d.doc.Find(sel.Query).Each(func(_ int, s *goquery.Selection) {
			var t string
			if sel.Attribute == "" || sel.Attribute == "text" {
				t = s.Text()
			} else {
				t, _ = s.Attr(sel.Attribute)
			}
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		})
	}
	return out
}

// count returns how many elements the selector matches, independent of
// whether they carry text.
func (d *htmlDoc) count(sel mountains.Selector) int {
	switch sel.Type {
	case "xpath":
		if d.root == nil {
			root, err := htmlquery.Parse(bytes.NewReader(d.raw))
			if err != nil {
				return 0
			}
			d.root = root
		}
		nodes, err := htmlquery.QueryAll(d.root, sel.Query)
		if err != nil {
			return 0
		}
		return len(nodes)
	default:
		return d.doc.Find(sel.Query).Length()
	}
}

// extractStatus applies a config's selector set to rendered or static HTML.
// Absent selectors contribute absent fields; malformed pages yield a
// best-effort result rather than an error.
func extractStatus(cfg *mountains.MountainConfig, body []byte, scrapedAt time.Time) (*types.ScrapedStatus, error) {
	doc, err := parseHTML(body)
	if err != nil {
		return nil, &types.ScrapeError{
			MountainID: cfg.ID,
			URL:        cfg.DataURL,
			Kind:       types.KindParse,
			Err:        err,
		}
	}

	status := &types.ScrapedStatus{
		MountainID: cfg.ID,
		SourceURL:  cfg.URL,
		DataURL:    cfg.DataURL,
		ScrapedAt:  scrapedAt,
	}

	if sel, ok := cfg.Selectors[mountains.FieldLiftsOpen]; ok {
		open, total, hasTotal := extractCounts(doc, sel, body)
		status.LiftsOpen = open
		if hasTotal {
			status.LiftsTotal = total
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldLiftsTotal]; ok {
		if n, ok := firstInt(doc, sel, body); ok {
			status.LiftsTotal = n
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldRunsOpen]; ok {
		open, total, hasTotal := extractCounts(doc, sel, body)
		status.RunsOpen = open
		if hasTotal {
			status.RunsTotal = total
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldRunsTotal]; ok {
		if n, ok := firstInt(doc, sel, body); ok {
			status.RunsTotal = n
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldPercentOpen]; ok {
		if t, ok := firstText(doc, sel, body); ok {
			if p, ok := ParsePercent(t); ok {
				status.PercentOpen = &p
			}
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldAcresOpen]; ok {
		if t, ok := firstText(doc, sel, body); ok {
			if f, ok := ParseNumber(t); ok {
				status.AcresOpen = &f
			}
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldAcresTotal]; ok {
		if t, ok := firstText(doc, sel, body); ok {
			if f, ok := ParseNumber(t); ok {
				status.AcresTotal = &f
			}
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldStatus]; ok {
		if t, ok := firstText(doc, sel, body); ok {
			status.IsOpen = IsOpenText(t)
		}
	}
	if sel, ok := cfg.Selectors[mountains.FieldMessage]; ok {
		if t, ok := firstText(doc, sel, body); ok {
			status.Message = t
		}
	}

	status.Normalize()
	return status, nil
}

// firstText returns the first matching element's trimmed text. When the
// selector carries a regex pattern, the pattern's first capture group is
// applied to the element text, or to the whole body if the query is empty.
func firstText(doc *htmlDoc, sel mountains.Selector, body []byte) (string, bool) {
	if sel.Pattern != "" {
		re, err := regexp.Compile(sel.Pattern)
		if err != nil {
			return "", false
		}
		hay := string(body)
		if sel.Query != "" {
			texts := doc.texts(sel)
			if len(texts) == 0 {
				return "", false
			}
			hay = texts[0]
		}
		m := re.FindStringSubmatch(hay)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return strings.TrimSpace(m[1]), true
		}
		return strings.TrimSpace(m[0]), true
	}
	texts := doc.texts(sel)
	if len(texts) == 0 {
		return "", false
	}
	return texts[0], true
}

func firstInt(doc *htmlDoc, sel mountains.Selector, body []byte) (int, bool) {
	t, ok := firstText(doc, sel, body)
	if !ok {
		return 0, false
	}
	return ParseInt(t)
}

// extractCounts resolves an open/total pair for a count field. Order of
// preference: a regex pattern with two capture groups, the ratio idiom in
// the first element's text, a plain integer, then the "count open-class
// nodes" fallback when the selector matched several elements.
func extractCounts(doc *htmlDoc, sel mountains.Selector, body []byte) (open, total int, hasTotal bool) {
	if sel.Pattern != "" {
		re, err := regexp.Compile(sel.Pattern)
		if err != nil {
			return 0, 0, false
		}
		hay := string(body)
		if sel.Query != "" {
			texts := doc.texts(sel)
			if len(texts) == 0 {
				return 0, 0, false
			}
			hay = texts[0]
		}
		m := re.FindStringSubmatch(hay)
		if m == nil {
			return 0, 0, false
		}
		switch {
		case len(m) >= 3:
			open, _ = strconv.Atoi(m[1])
			total, _ = strconv.Atoi(m[2])
			return open, total, true
		case len(m) == 2:
			open, _ = strconv.Atoi(m[1])
			return open, 0, false
		}
		return 0, 0, false
	}

	texts := doc.texts(sel)
	if len(texts) > 0 {
		if o, t, ok := ParseRatio(texts[0]); ok {
			return o, t, true
		}
	}
	n := doc.count(sel)
	if len(texts) == 1 && n == 1 {
		if v, ok := ParseInt(texts[0]); ok {
			return v, 0, false
		}
	}
	// No ratio anywhere: the selector enumerates open items, so the match
	// count is both the open and total figure.
	if n > 1 {
		return n, n, true
	}
	return 0, 0, false
}
