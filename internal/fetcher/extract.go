package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/54b3r/docpack-go/internal/rag"
)

// textElements are the elements whose text makes up a page's content.
var textElements = map[atom.Atom]bool{
	atom.H1:   true,
	atom.H2:   true,
	atom.H3:   true,
	atom.P:    true,
	atom.Li:   true,
	atom.Code: true,
	atom.Pre:  true,
}

// skipElements never contribute text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Extract parses an HTML document fetched from pageURL.
//
// The content root is the first <main>, else <article>, else <body>, else the
// whole document. Text is collected from h1-h3, p, li, code and pre elements
// in document order, one line per element; an element nested inside another
// matching element is covered by its ancestor and not repeated. The title is
// the <title> text, or pageURL when absent. Links are every <a href> in the
// document resolved against pageURL with fragments removed.
func Extract(pageURL string, body []byte) (*rag.Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse html of %s: %w", pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse %q: %w", pageURL, err)
	}

	root := findFirst(doc, atom.Main)
	if root == nil {
		root = findFirst(doc, atom.Article)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}

	var parts []string
	collectText(root, &parts)

	title := pageURL
	if t := findFirst(doc, atom.Title); t != nil {
		if s := nodeText(t); s != "" {
			title = s
		}
	}

	return &rag.Page{
		URL:   pageURL,
		Title: title,
		Text:  strings.Join(parts, "\n"),
		Links: collectLinks(doc, base),
	}, nil
}

// findFirst returns the first element with the given atom in document order.
func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// collectText appends the text of every outermost content element under n.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if textElements[n.DataAtom] {
			if s := nodeText(n); s != "" {
				*parts = append(*parts, s)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// nodeText returns the whitespace-trimmed text nodes under n joined by a
// single space.
func nodeText(n *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				words = append(words, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(words, " ")
}

// collectLinks resolves every anchor href in the document against base.
func collectLinks(doc *html.Node, base *url.URL) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") {
					break
				}
				ref, err := url.Parse(href)
				if err != nil {
					break
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				abs.RawFragment = ""
				links = append(links, abs.String())
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}
