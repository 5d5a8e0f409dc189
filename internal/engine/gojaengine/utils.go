package gojaengine

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xpath"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// installUtils exposes the HTML helpers as the utils global:
//
//	utils.parseHTML(html)                 -> document
//	utils.querySelector(html, selector)   -> element | null
//	utils.querySelectorAll(html, selector) -> element[]
//	utils.xpath(document | html, expr)    -> element[]
func (i *Invoker) installUtils() error {
	utils := i.vm.NewObject()
	helpers := map[string]func(goja.FunctionCall) goja.Value{
		"parseHTML": func(call goja.FunctionCall) goja.Value {
			return i.documentValue(i.parseDocument(call.Argument(0).String()))
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			doc := i.parseDocument(call.Argument(0).String())
			return i.firstValue(doc.Find(call.Argument(1).String()))
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			doc := i.parseDocument(call.Argument(0).String())
			return i.selectionValue(doc.Find(call.Argument(1).String()))
		},
		"xpath": i.xpath,
	}
	for name, fn := range helpers {
		if err := utils.Set(name, fn); err != nil {
			return err
		}
	}
	return i.vm.Set("utils", utils)
}

func (i *Invoker) parseDocument(source string) *goquery.Selection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		panic(i.vm.NewTypeError("parseHTML: %v", err))
	}
	return doc.Selection
}

func (i *Invoker) documentValue(doc *goquery.Selection) goja.Value {
	obj := i.elementObject(doc)
	source, _ := goquery.OuterHtml(doc)
	_ = obj.Set("_html", source)
	_ = obj.Set("xpath", func(expr string) goja.Value {
		return i.selectXPath(doc.Nodes[0], expr)
	})
	return obj
}

func (i *Invoker) elementObject(sel *goquery.Selection) *goja.Object {
	obj := i.vm.NewObject()
	inner, _ := sel.Html()
	outer, _ := goquery.OuterHtml(sel)
	_ = obj.Set("textContent", sel.Text())
	_ = obj.Set("innerHTML", inner)
	_ = obj.Set("outerHTML", outer)
	_ = obj.Set("tagName", goquery.NodeName(sel))
	_ = obj.Set("getAttribute", func(name string) goja.Value {
		if v, ok := sel.Attr(name); ok {
			return i.vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("querySelector", func(selector string) goja.Value {
		return i.firstValue(sel.Find(selector))
	})
	_ = obj.Set("querySelectorAll", func(selector string) goja.Value {
		return i.selectionValue(sel.Find(selector))
	})
	return obj
}

func (i *Invoker) firstValue(sel *goquery.Selection) goja.Value {
	if sel.Length() == 0 {
		return goja.Null()
	}
	return i.elementObject(sel.First())
}

func (i *Invoker) selectionValue(sel *goquery.Selection) goja.Value {
	items := make([]any, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		items = append(items, i.elementObject(s))
	})
	return i.vm.NewArray(items...)
}

func (i *Invoker) xpath(call goja.FunctionCall) goja.Value {
	target, expr := call.Argument(0), call.Argument(1).String()

	var root *html.Node
	if obj, ok := target.(*goja.Object); ok {
		if source := obj.Get("_html"); source != nil && !goja.IsUndefined(source) {
			root = i.parseNode(source.String())
		}
	}
	if root == nil {
		root = i.parseNode(target.String())
	}
	return i.selectXPath(root, expr)
}

func (i *Invoker) parseNode(source string) *html.Node {
	node, err := html.Parse(strings.NewReader(source))
	if err != nil {
		panic(i.vm.NewTypeError("xpath: failed to parse HTML: %v", err))
	}
	return node
}

func (i *Invoker) selectXPath(root *html.Node, expr string) goja.Value {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		panic(i.vm.NewTypeError("xpath: invalid expression %q: %v", expr, err))
	}

	items := []any{}
	iter := compiled.Select(newNavigator(root))
	for iter.MoveNext() {
		nav, ok := iter.Current().(*navigator)
		if !ok {
			continue
		}
		if nav.attr >= 0 {
			items = append(items, nav.node.Attr[nav.attr].Val)
			continue
		}
		items = append(items, i.elementObject(goquery.NewDocumentFromNode(nav.node).Selection))
	}
	return i.vm.NewArray(items...)
}

// navigator walks an x/net/html tree for xpath. attr is the index of the
// current attribute, or -1 when positioned on the node itself.
type navigator struct {
	root, node *html.Node
	attr       int
}

func newNavigator(root *html.Node) *navigator {
	return &navigator{root: root, node: root, attr: -1}
}

func (n *navigator) NodeType() xpath.NodeType {
	if n.attr >= 0 {
		return xpath.AttributeNode
	}
	switch n.node.Type {
	case html.DocumentNode:
		return xpath.RootNode
	case html.TextNode:
		return xpath.TextNode
	case html.CommentNode:
		return xpath.CommentNode
	}
	return xpath.ElementNode
}

func (n *navigator) LocalName() string {
	if n.attr >= 0 {
		return n.node.Attr[n.attr].Key
	}
	if n.node.Type == html.ElementNode {
		return n.node.Data
	}
	return ""
}

func (n *navigator) Prefix() string { return "" }

func (n *navigator) Value() string {
	if n.attr >= 0 {
		return n.node.Attr[n.attr].Val
	}
	switch n.node.Type {
	case html.TextNode, html.CommentNode:
		return n.node.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.node)
	return b.String()
}

func (n *navigator) Copy() xpath.NodeNavigator {
	c := *n
	return &c
}

func (n *navigator) MoveToRoot() {
	n.node, n.attr = n.root, -1
}

func (n *navigator) MoveToParent() bool {
	if n.attr >= 0 {
		n.attr = -1
		return true
	}
	if n.node == n.root || n.node.Parent == nil {
		return false
	}
	n.node = n.node.Parent
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	if n.node.Type != html.ElementNode || n.attr >= len(n.node.Attr)-1 {
		return false
	}
	n.attr++
	return true
}

func (n *navigator) MoveToChild() bool {
	if n.attr >= 0 || n.node.FirstChild == nil {
		return false
	}
	n.node = n.node.FirstChild
	return true
}

func (n *navigator) MoveToFirst() bool {
	if n.attr >= 0 || n.node.PrevSibling == nil {
		return false
	}
	for n.node.PrevSibling != nil {
		n.node = n.node.PrevSibling
	}
	return true
}

func (n *navigator) MoveToNext() bool {
	if n.attr >= 0 || n.node.NextSibling == nil {
		return false
	}
	n.node = n.node.NextSibling
	return true
}

func (n *navigator) MoveToPrevious() bool {
	if n.attr >= 0 || n.node.PrevSibling == nil {
		return false
	}
	n.node = n.node.PrevSibling
	return true
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.root != n.root {
		return false
	}
	n.node, n.attr = o.node, o.attr
	return true
}

func (n *navigator) String() string {
	return fmt.Sprintf("%s[%d]", n.LocalName(), n.attr)
}
