package script

import (
	"path/filepath"
	"strings"

	"github.com/maskfab/plsc/pkg/calltree"
	"github.com/maskfab/plsc/pkg/plserr"
)

// Section is one LAYER/SHAPE/SYMBOL/IMPORT block. The pointer-valued
// context fields stay nil until set by this section's header or
// inherited from the nearest preceding section that sets them.
type Section struct {
	Head string
	Body string
	Kind string
	Tree *calltree.CallTree

	ShapeName  string
	ImportFile string
	Namespace  string

	Symbol    *string
	Layer     *int
	IsParam   *bool
	CleanName *string
	Pattern   *string
	Args      *[]string

	root *Script
	prev *Section
}

func boolPtr(b bool) *bool       { return &b }
func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func argsPtr(a []string) *[]string { return &a }

// newSection parses the header, inherits context, builds and
// evaluates the body, and stores the results into the script.
func newSection(root *Script, head, body string, prev *Section) (*Section, error) {
	sec := &Section{
		Head: strings.TrimSpace(head),
		Body: strings.TrimSpace(body),
		root: root,
		prev: prev,
	}
	keyword, rest := headerKeyword(sec.Head)
	sec.Kind = keyword

	var err error
	switch keyword {
	case "LAYER":
		err = sec.parseLayer(rest)
	case "SHAPE":
		err = sec.parseShape(rest)
	case "SYMBOL":
		err = sec.parseSymbol(rest)
	case "IMPORT":
		err = sec.parseImport(rest)
	default:
		err = plserr.New(plserr.ParseError, "invalid section keyword %q", keyword)
	}
	if err != nil {
		return nil, err
	}

	sec.inheritContext()
	if err := sec.evaluateBody(); err != nil {
		return nil, err
	}
	return sec, nil
}

func (sec *Section) parseLayer(rest string) error {
	h, err := layerParser.ParseString("", rest)
	if err != nil {
		return plserr.New(plserr.ParseError, "invalid LAYER statement: '%s'", sec.Head)
	}
	if h.Num == nil && h.Name == nil {
		return plserr.New(plserr.ParseError, "invalid LAYER statement: '%s'", sec.Head)
	}
	var layerNum int
	if h.Name != nil {
		if err := validName(*h.Name); err != nil {
			return err
		}
		layerNum, err = sec.root.lookupLayerNum(*h.Name, h.Num)
		if err != nil {
			return err
		}
		if h.Num != nil && layerNum != *h.Num {
			return plserr.New(plserr.LayerConflict,
				"layer number conflict: wanted to assign layer %q to number %d, but LUT entry is %d",
				*h.Name, *h.Num, layerNum)
		}
	} else {
		layerNum = *h.Num
		if _, ok := sec.root.LayerDict[layerNum]; !ok {
			sec.root.LayerDict[layerNum] = ""
		}
	}
	if layerNum < 0 || layerNum > 255 {
		return plserr.New(plserr.DomainError, "layer number %d exceeds 0...255 range", layerNum)
	}
	sec.Layer = intPtr(layerNum)
	return nil
}

func (sec *Section) parseShape(rest string) error {
	h, err := shapeParser.ParseString("", rest)
	if err != nil {
		return plserr.New(plserr.ParseError, "invalid SHAPE statement: '%s'", sec.Head)
	}
	if err := validName(h.Name); err != nil {
		return err
	}
	for _, a := range h.Args {
		if err := validName(a); err != nil {
			return err
		}
	}
	sec.ShapeName = h.Name
	sec.Args = argsPtr(h.Args)
	return nil
}

func (sec *Section) parseSymbol(rest string) error {
	h, err := symbolParser.ParseString("", rest)
	if err != nil {
		return plserr.New(plserr.ParseError, "invalid SYMBOL statement: '%s'", sec.Head)
	}
	clean := cleanSymbolName(h.Pattern)
	if err := validName(clean); err != nil {
		return err
	}
	var args []string
	if h.Parens != nil {
		args = h.Parens.Args
	}

	if len(args) == 0 || clean == h.Pattern {
		// zero placeholders: an ordinary cell named by the pattern
		// verbatim (parameters, if any, are ignored); placeholders
		// without parameters are a parse error
		if clean != h.Pattern {
			return plserr.New(plserr.ParseError, "invalid SYMBOL statement: '%s'", sec.Head)
		}
		sec.IsParam = boolPtr(false)
		sec.Symbol = strPtr(clean)
		return nil
	}

	for _, a := range args {
		if err := validName(a); err != nil {
			return err
		}
	}
	sec.IsParam = boolPtr(true)
	sec.CleanName = strPtr(clean)
	sec.Pattern = strPtr(h.Pattern)
	sec.Args = argsPtr(args)
	return nil
}

func (sec *Section) parseImport(rest string) error {
	h, err := importParser.ParseString("", rest)
	if err != nil {
		return plserr.New(plserr.ParseError, "invalid IMPORT statement: '%s'", sec.Head)
	}
	sec.ImportFile = h.Path
	if h.Namespace != nil {
		sec.Namespace = *h.Namespace
	} else {
		base := filepath.Base(h.Path)
		parts := strings.Split(base, ".")
		if len(parts) > 1 {
			parts = parts[:len(parts)-1]
		}
		sec.Namespace = strings.Join(parts, "_")
	}
	if err := validName(sec.Namespace); err != nil {
		return err
	}

	importPath := sec.ImportFile
	if !filepath.IsAbs(importPath) {
		importPath = filepath.Join(filepath.Dir(sec.root.SPath), importPath)
	}
	if !strings.HasSuffix(importPath, ".pls") {
		return plserr.New(plserr.ParseError, "unsupported import file format %q", filepath.Ext(importPath))
	}

	imported, err := compilePath(importPath, sec.root, sec.root.opts)
	if err != nil {
		return err
	}
	sec.root.Deps[importPath] = imported.Deps
	sec.root.ImportDict[sec.Namespace] = imported
	sec.root.ImportOrder = append(sec.root.ImportOrder, sec.Namespace)

	// remap layers by name: the importer's binding wins
	layerMap := map[int]int{}
	for num, name := range imported.LayerDict {
		if name == "" {
			continue
		}
		preferred := num
		to, err := sec.root.lookupLayerNum(name, &preferred)
		if err != nil {
			return err
		}
		if to != num {
			layerMap[num] = to
		}
	}
	sec.root.importSymbols(imported.Lib, layerMap)

	for name, entries := range imported.paramSymDict {
		if _, dup := sec.root.paramSymDict[name]; dup {
			return plserr.New(plserr.DuplicateSymbol, "duplicate parametric symbol name %q", name)
		}
		sec.root.paramSymDict[name] = entries
	}
	return nil
}

// inheritContext copies unset context attributes from the nearest
// preceding section that sets them.
func (sec *Section) inheritContext() {
	prev := sec.prev
	for sec.Symbol == nil || sec.Layer == nil || sec.IsParam == nil {
		if prev == nil {
			break
		}
		if sec.IsParam == nil && prev.IsParam != nil {
			sec.IsParam = prev.IsParam
		}
		if sec.CleanName == nil && prev.CleanName != nil {
			sec.CleanName = prev.CleanName
		}
		if sec.Pattern == nil && prev.Pattern != nil {
			sec.Pattern = prev.Pattern
		}
		if sec.Args == nil && prev.Args != nil {
			sec.Args = prev.Args
		}
		if sec.Symbol == nil && prev.Symbol != nil {
			sec.Symbol = prev.Symbol
		}
		if sec.Layer == nil && prev.Layer != nil {
			sec.Layer = prev.Layer
		}
		prev = prev.prev
	}
}

// evaluateBody builds, lexes and evaluates the section body and
// applies its outcome: shapes and references land in the context
// symbol's cell, SHAPE bodies and parametric entries are stored
// unevaluated, assignments become globals.
func (sec *Section) evaluateBody() error {
	tree, err := calltree.New(sec.root, sec.Body)
	if err != nil {
		return err
	}
	sec.Tree = tree
	if err := tree.CreateLiterals(); err != nil {
		return err
	}

	isParam := sec.IsParam != nil && *sec.IsParam
	if sec.Kind != "SHAPE" && !isParam {
		// plain sections see the script globals; shape bodies and
		// parametric entries keep their free names for instantiation
		tree.ResolveNames(map[string]calltree.Value{}, true)
	}
	evalErr := tree.Evaluate()
	if evalErr != nil && sec.Kind != "SHAPE" && !isParam {
		return evalErr
	}

	if sec.Kind == "SHAPE" {
		args := []string{}
		if sec.Args != nil {
			args = *sec.Args
		}
		sec.root.shapeDict[sec.ShapeName] = &calltree.ShapeDef{Args: args, Tree: tree}
		return nil
	}
	if isParam {
		sec.root.registerParamEntry(sec)
		return nil
	}
	if evalErr != nil {
		return evalErr
	}

	if tree.ResultIsNone() {
		return nil
	}

	if assigns, ok := tree.ResultIsAssignments(); ok {
		for _, a := range assigns {
			sec.root.Globals[a.Name] = a.Val
		}
		return nil
	}

	if refs, err := tree.GetRefs(); err == nil {
		if sec.Symbol == nil {
			return plserr.New(plserr.ParseError, "shaperefs found without symbol context")
		}
		cell := sec.root.Lib.GetOrCreateCell(*sec.Symbol)
		for _, r := range refs {
			cell.AddReference(r)
		}
		return nil
	}

	shape, err := tree.GetShape()
	if err != nil {
		return err
	}
	if sec.Symbol == nil || sec.Layer == nil {
		return plserr.New(plserr.ParseError, "shapes found without symbol or layer context")
	}
	cell := sec.root.Lib.GetOrCreateCell(*sec.Symbol)
	cell.AddShape(shape, *sec.Layer)
	return nil
}

// String renders a short diagnostic description.
func (sec *Section) String() string {
	return "<section head='" + sec.Head + "'>"
}
