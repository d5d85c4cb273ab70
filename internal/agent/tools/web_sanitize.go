package tools

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements are elements whose entire subtree should be discarded.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Head:     true,
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
}

var (
	collapseSpaceRe = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
)

// PageText is the readable content of a fetched page
type PageText struct {
	Title string
	Text  string
}

// ExtractPage parses HTML and returns the title and visible text. When the
// page has <main> or <article> elements only their text is kept.
// Non-HTML content passes through unchanged.
func ExtractPage(raw []byte, contentType string) PageText {
	isHTML := strings.Contains(strings.ToLower(contentType), "html") ||
		bytes.HasPrefix(bytes.TrimSpace(bytes.ToLower(raw[:min(len(raw), 64)])), []byte("<!doctype html"))
	if !isHTML {
		return PageText{Text: string(raw)}
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return PageText{Text: string(raw)}
	}

	page := PageText{}
	if t := findFirst(doc, atom.Title); t != nil {
		page.Title = strings.TrimSpace(textContent(t))
	}

	roots := findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Main || n.DataAtom == atom.Article
	})
	if len(roots) == 0 {
		roots = []*html.Node{doc}
	}

	var buf strings.Builder
	for _, r := range roots {
		extractText(r, &buf)
		buf.WriteString("\n")
	}
	page.Text = normalizeText(buf.String())
	return page
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(collapseSpaceRe.ReplaceAllString(line, " "), unicode.IsSpace)
	}
	text = strings.Join(lines, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// extractText walks the HTML tree and writes visible text to buf.
func extractText(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return

	case html.ElementNode:
		if skipElements[n.DataAtom] || getAttr(n, "aria-hidden") == "true" || hasAttr(n, "hidden") {
			return
		}
		if style := getAttr(n, "style"); style != "" && isHiddenStyle(style) {
			return
		}

		isBlock := isBlockElement(n.DataAtom)
		if isBlock {
			buf.WriteString("\n")
		}
		if n.DataAtom == atom.Li {
			buf.WriteString("• ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c, buf)
		}
		if n.DataAtom == atom.Br || isBlock {
			buf.WriteString("\n")
		}

	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c, buf)
		}
	}
}

// textContent concatenates all descendant text nodes
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpaceRe.ReplaceAllString(strings.Join(strings.Fields(sb.String()), " "), " ")
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	found := findAll(n, func(n *html.Node) bool { return n.DataAtom == a })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// findAll returns matching element nodes in document order without
// descending into a match.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func isHiddenStyle(style string) bool {
	for _, re := range hiddenStylePatterns {
		if re.MatchString(style) {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Section, atom.Article, atom.Aside,
		atom.Header, atom.Footer, atom.Nav, atom.Main, atom.Figure,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li,
		atom.Table, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4,
		atom.H5, atom.H6, atom.Details, atom.Summary, atom.Form:
		return true
	}
	return false
}
