package htmlprocessor

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// domDocument implements Document on top of golang.org/x/net/html
type domDocument struct {
	root *html.Node
}

// ParseWithDOM parses an HTML page. The parser always synthesizes
// <html>, <head> and <body>, so fragments are accepted too.
func ParseWithDOM(page []byte) (Document, error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	return &domDocument{root: root}, nil
}

func (d *domDocument) SetBaseHref(href string) {
	if base := findElement(d.root, atom.Base); base != nil {
		setAttr(base, "href", href)
		return
	}

	head := findElement(d.root, atom.Head)
	if head == nil {
		return
	}

	base := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Base,
		Data:     "base",
		Attr:     []html.Attribute{{Key: "href", Val: href}},
	}
	head.InsertBefore(base, head.FirstChild)
}

func (d *domDocument) BaseHref() string {
	return getAttr(findElement(d.root, atom.Base), "href")
}

func (d *domDocument) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// findElement returns the first element of the given kind in document order
func findElement(node *html.Node, a atom.Atom) *html.Node {
	if node == nil {
		return nil
	}
	if node.Type == html.ElementNode && node.DataAtom == a {
		return node
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val
		}
	}
	return ""
}

func setAttr(node *html.Node, name, value string) {
	for i, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			node.Attr[i].Val = value
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: name, Val: value})
}
