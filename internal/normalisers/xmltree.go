package normalisers

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// XMLNode is an element or a run of character data. Character data nodes
// have an empty Name and only Text set.
type XMLNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*XMLNode
}

// ParseXML reads content into a tree and returns the root element.
// HTML entities such as &nbsp; are accepted.
func ParseXML(content []byte) (*XMLNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Entity = xml.HTMLEntity

	var root *XMLNode
	var stack []*XMLNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &XMLNode{Name: t.Name, Attrs: t.Copy().Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &XMLNode{Text: string(t)})
		}
	}
	if root == nil {
		return nil, errors.New("parse xml: no root element")
	}
	return root, nil
}

// IsElement reports whether n is an element rather than character data.
func (n *XMLNode) IsElement() bool {
	return n.Name.Local != ""
}

// Attr returns the value of the attribute with the given local name.
func (n *XMLNode) Attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Child returns the first direct child element with the given local name.
func (n *XMLNode) Child(local string) *XMLNode {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// Find returns the first descendant element with the given local name,
// searching depth first.
func (n *XMLNode) Find(local string) *XMLNode {
	for _, c := range n.Children {
		if !c.IsElement() {
			continue
		}
		if c.Name.Local == local {
			return c
		}
		if found := c.Find(local); found != nil {
			return found
		}
	}
	return nil
}

// TextContent returns all descendant character data with whitespace
// collapsed.
func (n *XMLNode) TextContent() string {
	if n == nil {
		return ""
	}
	return n.TextExcluding(nil)
}

// TextExcluding is TextContent minus the subtrees for which skip returns
// true. Adjacent element texts are separated by a space.
func (n *XMLNode) TextExcluding(skip func(*XMLNode) bool) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*XMLNode)
	walk = func(node *XMLNode) {
		for _, c := range node.Children {
			if !c.IsElement() {
				b.WriteString(c.Text)
				continue
			}
			if skip != nil && skip(c) {
				continue
			}
			b.WriteByte(' ')
			walk(c)
			b.WriteByte(' ')
		}
	}
	walk(n)
	return CollapseWhitespace(b.String())
}
