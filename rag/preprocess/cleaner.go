// Package preprocess turns fetched web pages into paragraph text suitable for
// passage ranking.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)

	typographic = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"“", `"`, "”", `"`, "‘", "'", "’", "'",
		"•", "-", " ", " ",
	)

	// Lines containing these fragments are site chrome, not legal text.
	noisePatterns = []string{
		"cookie", "privacy policy", "terms of use", "all rights reserved",
		"subscribe", "sign in", "log in", "advertisement", "share this",
		"skip to main content",
	}
)

// CleanBasic turns tabs and carriage returns into spaces, strips other
// control characters, normalises typography and collapses runs of whitespace
// while keeping paragraph breaks.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	b := strings.Map(func(r rune) rune {
		switch r {
		case '\n':
			return r
		case '\t', '\r', '\v', '\f':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	b = typographic.Replace(b)
	b = reSpaces.ReplaceAllString(b, " ")

	lines := strings.Split(b, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	b = reNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(b)
}

// HTMLToText extracts headings, paragraphs, list items and tables from an HTML
// page, one block per paragraph separated by blank lines.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,noscript,nav,header,footer,aside,form").Remove()

	root := doc.Find("main,article").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var out []string
	root.Find("h1,h2,h3,h4,p,li,blockquote,pre,table").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			out = append(out, "# "+text)
		case "li":
			out = append(out, "- "+text)
		case "table":
			out = append(out, parseTable(s))
		default:
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n"), nil
}

func parseTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// RemoveDuplicateParagraphs drops repeated paragraphs, keeping the first.
func RemoveDuplicateParagraphs(text string) string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// RemoveWebNoise drops lines that look like navigation or consent banners.
func RemoveWebNoise(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		lower := strings.ToLower(l)
		skip := false
		for _, p := range noisePatterns {
			if len(lower) < 120 && strings.Contains(lower, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Preprocess runs the full cleanup pipeline over plain text.
func Preprocess(raw string) string {
	t := CleanBasic(raw)
	t = RemoveWebNoise(t)
	return RemoveDuplicateParagraphs(t)
}

// Page converts an HTML page to cleaned paragraph text.
func Page(html string) (string, error) {
	text, err := HTMLToText(html)
	if err != nil {
		return "", err
	}
	return Preprocess(text), nil
}
