package docconvert

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// HTMLDocument is the readable part of a web page.
type HTMLDocument struct {
	Title       string
	Description string
	Markdown    string
	Headings    int
	Links       int
}

func convertHTMLFile(path string) (converted, error) {
	f, err := os.Open(path)
	if err != nil {
		return converted{}, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	doc, err := HTMLToMarkdown(f)
	if err != nil {
		return converted{}, err
	}
	meta := domain.Metadata{
		"heading_count": doc.Headings,
		"link_count":    doc.Links,
	}
	if doc.Title != "" {
		meta["html_title"] = doc.Title
	}
	return converted{markdown: doc.Markdown, pages: 1, engine: "html", meta: meta}, nil
}

// HTMLToMarkdown keeps headings, paragraphs, list items and table cells and
// drops scripts, styles and page chrome.
func HTMLToMarkdown(r io.Reader) (HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return HTMLDocument{}, fmt.Errorf("parse html: %w", err)
	}

	out := HTMLDocument{
		Title:       strings.TrimSpace(textContent(findElement(root, "title"))),
		Description: metaDescription(root),
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "header", "form", "svg":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if text := textContent(n); text != "" {
					out.Headings++
					blocks = append(blocks, strings.Repeat("#", int(n.Data[1]-'0'))+" "+text)
				}
				return
			case "p", "blockquote", "pre", "td", "th", "dd", "dt", "figcaption":
				if text := textContent(n); text != "" {
					blocks = append(blocks, text)
				}
				out.Links += countLinks(n)
				return
			case "li":
				if text := textContent(n); text != "" {
					blocks = append(blocks, "- "+text)
				}
				out.Links += countLinks(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(root, "body"); body != nil {
		walk(body)
	} else {
		walk(root)
	}
	out.Markdown = strings.Join(blocks, "\n\n")
	return out, nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func metaDescription(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "meta" {
		var name, content string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "name", "property":
				name = strings.ToLower(attr.Val)
			case "content":
				content = attr.Val
			}
		}
		if name == "description" || name == "og:description" {
			return strings.TrimSpace(content)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if d := metaDescription(c); d != "" {
			return d
		}
	}
	return ""
}

func countLinks(n *html.Node) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == "a" {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countLinks(c)
	}
	return count
}
