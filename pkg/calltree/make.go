package calltree

import (
	"regexp"
	"strings"

	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/plserr"
)

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9._]+`)

// makeSymbol instantiates a parametric symbol: it consumes the
// paramshaperef on the left and the argument list on the right of the
// make operator and leaves a reference to the (possibly new) cell.
func (t *CallTree) makeSymbol(c *cursor) error {
	// peek both operands; they are only consumed once instantiation
	// succeeds, so a failed make can be retried after resolution
	op1 := *c.peekPrev()
	op2 := *c.peekNext()
	entries := op1.Param
	if t.root != nil && op1.S != "" {
		// prefer the live dictionaries over possibly stale entries
		// restored from a cache snapshot
		if fresh, ok := t.root.FindParamSym(op1.S); ok {
			entries = fresh
		}
	}
	if len(entries) == 0 {
		return plserr.New(plserr.ParseError, "parametric symbol without sections")
	}
	pattern := entries[0].NamePattern
	argNames := entries[0].Args

	params, err := bindSymParams(argNames, op2.List)
	if err != nil {
		return err
	}

	// resolve names used as parameters against magic and globals
	scope := map[string]Value{}
	injectMagic(scope, t.root)
	if t.root != nil {
		for k, v := range t.root.GlobalValues() {
			if _, ok := scope[k]; !ok {
				scope[k] = v
			}
		}
	}
	var unresolved []string
	for i := range params {
		if params[i].Kind == KindName {
			if bound, ok := scope[params[i].S]; ok {
				params[i] = bound.Clone()
			} else {
				unresolved = append(unresolved, params[i].S)
			}
		}
	}
	if len(unresolved) > 0 {
		return plserr.Unresolved(unresolved)
	}

	name, err := formatPattern(pattern, argNames, params)
	if err != nil {
		return err
	}
	name = sanitizeRe.ReplaceAllString(name, "_")
	if name == pattern {
		return plserr.New(plserr.ParseError, "symbol pattern %q contains no placeholders", pattern)
	}

	lib := t.root.Library()
	cell := lib.GetOrCreateCell(name)
	if cell.Empty() {
		for _, entry := range entries {
			tree := entry.Tree.Clone()
			argdict := map[string]Value{}
			for i, a := range entry.Args {
				if i < len(params) {
					argdict[a] = params[i]
				}
			}
			entryUnresolved := tree.ResolveNames(argdict, true)
			if err := tree.Evaluate(); err != nil {
				return err
			}
			if tree.ResultIsNone() {
				continue
			}
			if s, err := tree.GetShape(); err == nil {
				if s == nil || s.Empty() {
					if len(entryUnresolved) > 0 {
						return plserr.Unresolved(entryUnresolved)
					}
					continue
				}
				if entry.Layer < 0 {
					return plserr.New(plserr.DomainError, "parametric symbol %q has shapes without a layer in context", pattern)
				}
				cell.AddShape(s, entry.Layer)
				continue
			}
			refs, err := tree.GetRefs()
			if err != nil {
				return err
			}
			for _, r := range refs {
				cell.AddReference(r)
			}
		}

		// make the new cell visible through every ancestor library
		for p := t.root.ParentScript(); p != nil; p = p.ParentScript() {
			if p.Library().Cell(name) == nil {
				p.Library().Cells[name] = cell
			}
		}
	}

	c.popPrev()
	c.popNext()
	c.set(RefValue(&gds.Reference{CellName: name}))
	return nil
}

// bindSymParams orders positional and named make arguments onto the
// declared parameter names, requiring each exactly once.
func bindSymParams(argNames []string, args []Value) ([]Value, error) {
	bound := map[string]Value{}
	pos := 0
	for _, a := range args {
		if a.Kind == KindAssign {
			if a.As.Name == ignoreExtraArgsName {
				continue
			}
			declared := false
			for _, n := range argNames {
				if n == a.As.Name {
					declared = true
					break
				}
			}
			if !declared {
				return nil, plserr.New(plserr.ArityError, "unknown parameter %q in symbol instantiation", a.As.Name)
			}
			if _, dup := bound[a.As.Name]; dup {
				return nil, plserr.New(plserr.ArityError, "parameter %q supplied twice in symbol instantiation", a.As.Name)
			}
			bound[a.As.Name] = a.As.Val
			continue
		}
		for pos < len(argNames) {
			if _, taken := bound[argNames[pos]]; !taken {
				break
			}
			pos++
		}
		if pos >= len(argNames) {
			return nil, plserr.New(plserr.ArityError, "too many parameters in symbol instantiation (%d declared)", len(argNames))
		}
		bound[argNames[pos]] = a
		pos++
	}
	params := make([]Value, len(argNames))
	for i, n := range argNames {
		v, ok := bound[n]
		if !ok {
			return nil, plserr.New(plserr.ArityError, "missing parameter %q in symbol instantiation", n)
		}
		params[i] = v
	}
	return params, nil
}

// formatPattern substitutes the {} placeholders of a symbol name
// pattern: empty braces consume parameters in order, named braces pick
// the matching declared parameter.
func formatPattern(pattern string, argNames []string, params []Value) (string, error) {
	var sb strings.Builder
	pos := 0
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			return "", plserr.New(plserr.ParseError, "unbalanced '{' in symbol pattern %q", pattern)
		}
		content := pattern[i+1 : i+end]
		i += end + 1

		idx := -1
		if content != "" {
			for ai, n := range argNames {
				if n == content {
					idx = ai
					break
				}
			}
		}
		if idx < 0 {
			if pos >= len(params) {
				return "", plserr.New(plserr.ArityError, "symbol pattern %q has more placeholders than parameters", pattern)
			}
			idx = pos
			pos++
		}
		sb.WriteString(params[idx].Format())
	}
	return sb.String(), nil
}
