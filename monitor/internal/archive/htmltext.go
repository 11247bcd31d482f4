package archive

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractText parses HTML and returns its visible text, one block element
// per line. Script, style, noscript, and chrome elements are skipped, as is
// the Wayback Machine toolbar markup.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
				return
			}
			if isWaybackChrome(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.DataAtom) && sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}
	walk(doc)
	return sb.String(), nil
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Li, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Br:
		return true
	}
	return false
}

// isWaybackChrome spots the replay toolbar the Wayback Machine injects.
func isWaybackChrome(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "id" && strings.HasPrefix(a.Val, "wm-") {
			return true
		}
	}
	return false
}
