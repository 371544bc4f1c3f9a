package calltree

import (
	"path/filepath"
	"strings"
)

// ignoreExtraArgsName is the sentinel assignment the unpack operator
// plants so that unknown or duplicate named arguments are tolerated.
const ignoreExtraArgsName = "__ignore_extra_args__"

// injectMagic folds the magic bindings into the scope. They win over
// user assignments of the same name.
func injectMagic(scope map[string]Value, root Root) {
	if root != nil {
		base := filepath.Base(root.Path())
		if i := strings.Index(base, "."); i >= 0 {
			base = base[:i]
		}
		scope["__FILENAME__"] = StringValue(base)
		scope["__HASH__"] = StringValue(root.ScriptHash())
		now := root.Clock()
		scope["__DATE__"] = StringValue(now.Format("02.01.2006"))
		scope["__TIME__"] = StringValue(now.Format("15:04"))
	}
	scope["True"] = IntValue(1)
	scope["False"] = IntValue(0)
}

// ResolveNames substitutes bound names throughout the tree and returns
// the names that stayed unresolved. Resolution is idempotent. With
// resolveGlobals set, the owning script's globals are folded in
// beneath the magic bindings without overwriting the given scope.
func (t *CallTree) ResolveNames(scope map[string]Value, resolveGlobals bool) []string {
	if scope == nil {
		scope = map[string]Value{}
	}
	injectMagic(scope, t.root)
	if resolveGlobals && t.root != nil {
		for k, v := range t.root.GlobalValues() {
			if _, ok := scope[k]; !ok {
				scope[k] = v
			}
		}
	}
	return t.resolve(scope)
}

func (t *CallTree) resolve(scope map[string]Value) []string {
	var unresolved []string

	for _, c := range t.Children {
		unresolved = append(unresolved, c.resolve(scope)...)
	}

	for i := range t.Result {
		unresolved = append(unresolved, resolveValue(&t.Result[i], scope, false)...)
	}
	if t.HasLits {
		for i := range t.Literals {
			unresolved = append(unresolved, resolveValue(&t.Literals[i], scope, true)...)
		}
	}
	return unresolved
}

// resolveValue rewrites one value in place. Names, assignment payloads,
// argument-list items and object entries are resolved at every level;
// how a Tree value is handled depends on topLevel, which is true only
// for a node's own literals.
func resolveValue(v *Value, scope map[string]Value, topLevel bool) []string {
	switch v.Kind {
	case KindName:
		if bound, ok := scope[v.S]; ok {
			*v = bound.Clone()
			return nil
		}
		return []string{v.S}

	case KindAssign:
		if v.As != nil {
			return resolveValue(&v.As.Val, scope, false)
		}

	case KindArgList:
		var unresolved []string
		for i := range v.List {
			unresolved = append(unresolved, resolveValue(&v.List[i], scope, false)...)
		}
		return unresolved

	case KindObject:
		if v.Obj != nil {
			var unresolved []string
			for i := range v.Obj.Entries {
				unresolved = append(unresolved, resolveValue(&v.Obj.Entries[i].Val, scope, false)...)
			}
			return unresolved
		}

	case KindTree:
		if !topLevel || v.Tree == nil {
			return nil
		}
		unresolved := v.Tree.Tree.resolve(scope)
		var pending []string
		for _, arg := range v.Tree.Args {
			if _, ok := scope[arg]; !ok {
				pending = append(pending, arg)
			}
		}
		v.Tree.Args = pending
		if len(pending) == 0 {
			if err := v.Tree.Tree.Evaluate(); err == nil {
				if s, err := v.Tree.Tree.GetShape(); err == nil {
					*v = ShapeValue(s.Clone())
					return nil
				}
			}
		}
		return unresolved
	}
	return nil
}
