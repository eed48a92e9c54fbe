package acd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The instrument's response documents mix element-name casing between order
// families (ORDER_DEF vs order_def, ACD_ERR vs acd_err). Decoding therefore
// goes through a small generic element tree with case-insensitive lookup
// instead of tag-bound structs, and every extraction is best-effort: a
// missing element yields an absent value, never a failed decode.

type node struct {
	name     string
	text     string
	children []*node
}

// parseDocument builds the element tree for a response document. It is the
// only place a decode can fail outright.
func parseDocument(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &node{}
	stack := []*node{root}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse response document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			cur := stack[len(stack)-1]
			cur.text += string(t)
		}
	}

	if len(root.children) == 0 {
		return nil, fmt.Errorf("parse response document: no root element")
	}
	return root.children[0], nil
}

// find returns the first descendant (or self) whose name matches,
// case-insensitively, in document order.
func (n *node) find(name string) *node {
	if n == nil {
		return nil
	}
	if strings.EqualFold(n.name, name) {
		return n
	}
	for _, c := range n.children {
		if m := c.find(name); m != nil {
			return m
		}
	}
	return nil
}

// findAll returns every matching descendant (or self) in document order.
func (n *node) findAll(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	if strings.EqualFold(n.name, name) {
		out = append(out, n)
	}
	for _, c := range n.children {
		out = append(out, c.findAll(name)...)
	}
	return out
}

func (n *node) value() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// textOf is find + value.
func textOf(n *node, name string) string {
	return n.find(name).value()
}

// floatOf returns the element text as a float, or nil when the element is
// missing or malformed.
func floatOf(n *node, name string) *float64 {
	s := textOf(n, name)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func intOf(n *node, name string) *int {
	s := textOf(n, name)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// valuesOf collects the non-empty values of all matching descendants.
func valuesOf(n *node, name string) []string {
	var out []string
	for _, m := range n.findAll(name) {
		if v := m.value(); v != "" {
			out = append(out, v)
		}
	}
	return out
}
