package html

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/assetflow/internal/build"
)

const indentUnit = "  "

// Pretty re-indents an HTML document, one element per line. Content of pre,
// textarea, script and style elements is kept verbatim.
func Pretty(ctx context.Context, a build.Asset) (build.Asset, error) {
	doc, err := html.Parse(bytes.NewReader(a.Content))
	if err != nil {
		return build.Asset{}, fmt.Errorf("failed to parse rendered page: %w", err)
	}

	p := &printer{}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		p.node(c, 0)
	}

	a.Content = p.buf.Bytes()
	return a, nil
}

type printer struct {
	buf bytes.Buffer
}

func (p *printer) line(depth int, s string) {
	p.buf.WriteString(strings.Repeat(indentUnit, depth))
	p.buf.WriteString(s)
	p.buf.WriteByte('\n')
}

func (p *printer) node(n *html.Node, depth int) {
	switch n.Type {
	case html.DoctypeNode:
		p.line(depth, "<!DOCTYPE "+n.Data+">")
	case html.CommentNode:
		p.line(depth, "<!--"+n.Data+"-->")
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			p.line(depth, html.EscapeString(text))
		}
	case html.ElementNode:
		p.element(n, depth)
	}
}

func (p *printer) element(n *html.Node, depth int) {
	open := openTag(n)

	if isVoid(n) {
		p.line(depth, open)
		return
	}

	closeTag := "</" + n.Data + ">"

	if isRaw(n) {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
				b.WriteString(c.Data)
			case c.Type == html.TextNode:
				b.WriteString(html.EscapeString(c.Data))
			default:
				_ = html.Render(&b, c)
			}
		}
		body := b.String()
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			body = strings.Trim(body, "\n")
		}
		if !strings.Contains(body, "\n") {
			p.line(depth, open+body+closeTag)
			return
		}
		p.buf.WriteString(strings.Repeat(indentUnit, depth) + open + "\n" + body + closeTag + "\n")
		return
	}

	if text, ok := onlyText(n); ok {
		p.line(depth, open+html.EscapeString(text)+closeTag)
		return
	}

	p.line(depth, open)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.node(c, depth+1)
	}
	p.line(depth, closeTag)
}

func openTag(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, attr := range n.Attr {
		b.WriteByte(' ')
		if attr.Namespace != "" {
			b.WriteString(attr.Namespace + ":")
		}
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

// onlyText reports whether n holds at most one short text child, which
// stays on the element's line.
func onlyText(n *html.Node) (string, bool) {
	if n.FirstChild == nil {
		return "", true
	}
	if n.FirstChild != n.LastChild || n.FirstChild.Type != html.TextNode {
		return "", false
	}
	text := strings.Join(strings.Fields(n.FirstChild.Data), " ")
	return text, len(text) <= 80
}

func isVoid(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

func isRaw(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Pre, atom.Textarea, atom.Script, atom.Style:
		return true
	}
	return false
}
