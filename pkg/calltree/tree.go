package calltree

import (
	"strings"

	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

// CallTree is one node of the call tree: a function name (possibly
// empty), ordered children, and after reduction a single result value
// or a list of shape references. Leaves carry raw text until the lexer
// turns them into token lists.
type CallTree struct {
	Func     string
	Children []*CallTree
	Text     string
	Literals []Value
	HasLits  bool
	Result   []Value
	Done     bool

	root Root
}

// New builds the call tree for a section body by matching parentheses;
// the maximal trailing identifier before each '(' becomes the child's
// function name. String literals hide parentheses from the builder.
func New(root Root, text string) (*CallTree, error) {
	t := &CallTree{root: root}
	if text == "" {
		return t, nil
	}
	stack := []*CallTree{t}
	var buf strings.Builder
	var delim byte

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case delim != 0:
			buf.WriteByte(c)
			if c == delim {
				delim = 0
			}

		case c == '"' || c == '\'':
			delim = c
			buf.WriteByte(c)

		case c == '(':
			top := stack[len(stack)-1]
			child := &CallTree{root: root}
			s := buf.String()
			split := len(s)
			for split > 0 && isIdentPart(s[split-1]) {
				split--
			}
			child.Func = s[split:]
			top.addText(s[:split])
			top.Children = append(top.Children, child)
			stack = append(stack, child)
			buf.Reset()

		case c == ')':
			stack[len(stack)-1].addText(buf.String())
			stack = stack[:len(stack)-1]
			buf.Reset()
			if len(stack) == 0 {
				lo := i - 30
				if lo < 0 {
					lo = 0
				}
				hi := i + 30
				if hi > len(text) {
					hi = len(text)
				}
				return nil, plserr.New(plserr.ParseError, "additional ')' at: '%s'", shorten(text[lo:hi]))
			}

		default:
			buf.WriteByte(c)
		}
	}
	if delim != 0 {
		return nil, plserr.New(plserr.LexError, "unterminated string")
	}
	if len(stack) > 1 {
		return nil, plserr.New(plserr.ParseError, "additional '('")
	}
	stack[0].addText(buf.String())
	return t, nil
}

func (t *CallTree) addText(text string) {
	text = strings.TrimSpace(text)
	if text != "" {
		t.Children = append(t.Children, &CallTree{root: t.root, Text: text})
	}
}

// Root returns the owning script handle.
func (t *CallTree) Root() Root { return t.root }

// SetRoot re-points the node and every descendant to the given owning
// script; used after cache deserialization.
func (t *CallTree) SetRoot(root Root) {
	t.root = root
	for _, c := range t.Children {
		c.SetRoot(root)
	}
	for i := range t.Literals {
		setValueRoot(&t.Literals[i], root)
	}
	for i := range t.Result {
		setValueRoot(&t.Result[i], root)
	}
}

func setValueRoot(v *Value, root Root) {
	switch v.Kind {
	case KindTree:
		if v.Tree != nil {
			v.Tree.Tree.SetRoot(root)
		}
	case KindArgList:
		for i := range v.List {
			setValueRoot(&v.List[i], root)
		}
	case KindAssign:
		if v.As != nil {
			setValueRoot(&v.As.Val, root)
		}
	}
}

// CreateLiterals lexes every text child into a token list and merges
// adjacent token-bearing children. The point/object bracket modes span
// the text children of one node.
func (t *CallTree) CreateLiterals() error {
	for _, c := range t.Children {
		if c.Func != "" || len(c.Children) > 0 {
			if err := c.CreateLiterals(); err != nil {
				return err
			}
		}
	}

	var st lexState
	for _, c := range t.Children {
		if c.Text != "" && !c.HasLits {
			lits, err := lexText(c.Text, &st)
			if err != nil {
				return err
			}
			c.Literals = lits
			c.HasLits = true
		}
	}
	t.mergeChildren()
	return nil
}

// mergeChildren concatenates the token lists of adjacent
// literal-bearing children.
func (t *CallTree) mergeChildren() {
	i := 0
	for i < len(t.Children)-1 {
		if t.Children[i].HasLits && t.Children[i+1].HasLits {
			t.Children[i].Literals = append(t.Children[i].Literals, t.Children[i+1].Literals...)
			t.Children = append(t.Children[:i+1], t.Children[i+2:]...)
		} else {
			i++
		}
	}
}

// Clone returns a deep copy sharing the same root.
func (t *CallTree) Clone() *CallTree {
	out := &CallTree{
		Func:    t.Func,
		Text:    t.Text,
		HasLits: t.HasLits,
		Done:    t.Done,
		root:    t.root,
	}
	for _, c := range t.Children {
		out.Children = append(out.Children, c.Clone())
	}
	if t.Literals != nil {
		out.Literals = make([]Value, len(t.Literals))
		for i, l := range t.Literals {
			out.Literals[i] = l.Clone()
		}
	}
	if t.Result != nil {
		out.Result = make([]Value, len(t.Result))
		for i, r := range t.Result {
			out.Result[i] = r.Clone()
		}
	}
	return out
}

// GetShape returns the single shape result of an evaluated tree.
func (t *CallTree) GetShape() (*geom.Shape, error) {
	if !t.Done || len(t.Result) != 1 || t.Result[0].Kind != KindShape {
		return nil, plserr.New(plserr.TypeError, "expected shape result but found: %s", resultString(t.Result))
	}
	return t.Result[0].Shape, nil
}

// GetRefs returns the reference-list result of an evaluated tree.
func (t *CallTree) GetRefs() ([]*gds.Reference, error) {
	if !t.Done {
		return nil, plserr.New(plserr.TypeError, "tree not evaluated")
	}
	refs := make([]*gds.Reference, 0, len(t.Result))
	for _, r := range t.Result {
		if r.Kind != KindShapeRef {
			return nil, plserr.New(plserr.TypeError, "expected only shaperef results but found: %s", resultString(t.Result))
		}
		refs = append(refs, r.Ref)
	}
	return refs, nil
}

// ResultIsNone reports whether the evaluated tree produced nothing.
func (t *CallTree) ResultIsNone() bool {
	return t.Done && len(t.Result) == 1 && t.Result[0].Kind == KindNone
}

// ResultIsAssignments reports whether the result is purely
// assignments, and returns them.
func (t *CallTree) ResultIsAssignments() ([]*Assignment, bool) {
	if !t.Done {
		return nil, false
	}
	var out []*Assignment
	if len(t.Result) == 1 {
		switch t.Result[0].Kind {
		case KindAssign:
			return []*Assignment{t.Result[0].As}, true
		case KindArgList:
			for _, item := range t.Result[0].List {
				if item.Kind != KindAssign {
					return nil, false
				}
				out = append(out, item.As)
			}
			return out, len(out) > 0
		}
	}
	return nil, false
}

func resultString(res []Value) string {
	parts := make([]string, len(res))
	for i, r := range res {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// String renders an indented dump of the tree for debugging.
func (t *CallTree) String() string {
	var sb strings.Builder
	t.dump(&sb, 0)
	return sb.String()
}

func (t *CallTree) dump(sb *strings.Builder, level int) {
	indent := strings.Repeat("  ", level)
	sb.WriteString(indent)
	sb.WriteString("<node func='" + t.Func + "'")
	if t.HasLits {
		sb.WriteString(" literals=" + PrintTokens(t.Literals))
	}
	if t.Text != "" {
		sb.WriteString(" text='" + shorten(t.Text) + "'")
	}
	if t.Done {
		sb.WriteString(" result=" + resultString(t.Result))
	}
	sb.WriteString(">\n")
	for _, c := range t.Children {
		c.dump(sb, level+1)
	}
}
