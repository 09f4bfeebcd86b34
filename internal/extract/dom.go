package extract

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	multiSpacePattern   = regexp.MustCompile(`[ \t\f\r\v\x{00a0}]+`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// visibleText returns the human-visible text under n with block elements
// separated by newlines.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	walkText(n, &sb, 0)
	return cleanText(sb.String())
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Head, atom.Iframe:
			return
		case atom.Br:
			sb.WriteByte('\n')
			return
		}
		if hasAttr(n, "hidden") || getAttr(n, "aria-hidden") == "true" {
			return
		}
	}

	var sep byte
	if n.Type == html.ElementNode {
		switch {
		case isBlock(n.DataAtom):
			sep = '\n'
		case n.DataAtom == atom.Td || n.DataAtom == atom.Th || n.DataAtom == atom.Option:
			sep = ' '
		}
	}
	if sep != 0 {
		sb.WriteByte(sep)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
	if sep != 0 {
		sb.WriteByte(sep)
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer,
		atom.Nav, atom.Aside, atom.Ul, atom.Ol, atom.Li, atom.Dl, atom.Dt, atom.Dd,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Table, atom.Tr,
		atom.Pre, atom.Blockquote, atom.Form, atom.Body, atom.Html:
		return true
	}
	return false
}

// cleanText collapses runs of spaces, trims each line and squeezes blank lines.
func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// inlineText is visibleText flattened to one line.
func inlineText(n *html.Node) string {
	return strings.Join(strings.Fields(visibleText(n)), " ")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// rawText concatenates the text children of n without visibility filtering.
// Used for <script> bodies and <title>.
func rawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

var (
	titleSel       = cascadia.MustCompile("title")
	bodySel        = cascadia.MustCompile("body")
	descriptionSel = cascadia.MustCompile(`meta[name="description"], meta[property="og:description"]`)
	ogTitleSel     = cascadia.MustCompile(`meta[property="og:title"]`)
)

func firstMatch(doc *html.Node, sel cascadia.Selector) *html.Node {
	return sel.MatchFirst(doc)
}

// metaContent returns the first non-empty content attribute among matches.
func metaContent(doc *html.Node, sel cascadia.Selector) string {
	for _, n := range sel.MatchAll(doc) {
		if c := strings.TrimSpace(getAttr(n, "content")); c != "" {
			return c
		}
	}
	return ""
}
