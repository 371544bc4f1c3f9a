package script

import (
	"crypto/sha1"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/maskfab/plsc/internal/cache"
	"github.com/maskfab/plsc/pkg/calltree"
	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

// Options configure a compile run.
type Options struct {
	// ForceRerender ignores every cache along the import tree.
	ForceRerender bool
	// Now supplies the clock for __DATE__ and __TIME__; nil means
	// the wall clock.
	Now func() time.Time
}

// Script is a compiled .pls file: its sections, the dictionaries they
// fill, the produced cell library and the dependency tree.
type Script struct {
	SPath       string
	Hash        string
	Sections    []*Section
	ImportDict  map[string]*Script
	ImportOrder []string
	LayerDict   map[int]string // layer number to name; "" for unnamed
	Globals     map[string]calltree.Value
	Lib         *gds.Library
	Deps        cache.Deps

	shapeDict    map[string]*calltree.ShapeDef
	paramSymDict map[string][]*calltree.ParamSymEntry
	parent       *Script
	opts         Options
	fromCache    bool
}

func newScript(path string, parent *Script, opts Options) *Script {
	name := "library"
	if path != "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &Script{
		SPath:        path,
		ImportDict:   map[string]*Script{},
		LayerDict:    map[int]string{},
		Globals:      map[string]calltree.Value{},
		Lib:          gds.NewLibrary(name),
		Deps:         cache.Deps{},
		shapeDict:    map[string]*calltree.ShapeDef{},
		paramSymDict: map[string][]*calltree.ParamSymEntry{},
		parent:       parent,
		opts:         opts,
	}
}

// CompileFile compiles a .pls file, consulting the result cache.
func CompileFile(path string, opts Options) (*Script, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return compilePath(abs, nil, opts)
}

func compilePath(abs string, parent *Script, opts Options) (*Script, error) {
	if s, ok := tryLoadCache(abs, parent, opts); ok {
		return s, nil
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	s := newScript(abs, parent, opts)
	if err := s.compile(stripComments(string(raw))); err != nil {
		return nil, err
	}
	if cachePath := cache.Path(abs); cachePath != "" {
		// a failed cache write only costs the next run a recompile
		_ = cache.Write(cachePath, s)
	}
	return s, nil
}

// CompileString compiles script text without a backing file; no cache
// is consulted or written.
func CompileString(text string, opts Options) (*Script, error) {
	s := newScript("", nil, opts)
	if err := s.compile(stripComments(text)); err != nil {
		return nil, err
	}
	return s, nil
}

func tryLoadCache(abs string, parent *Script, opts Options) (*Script, bool) {
	if opts.ForceRerender || !cache.PathCached(abs, time.Time{}) {
		return nil, false
	}
	var loaded Script
	if err := cache.Read(cache.Path(abs), &loaded); err != nil {
		return nil, false
	}
	loaded.rehydrate(parent, opts)
	if !cache.DepsFresh(loaded.Deps) {
		return nil, false
	}
	loaded.fromCache = true
	return &loaded, true
}

// LoadedFromCache reports whether this script was restored from its
// cache file instead of recompiled.
func (s *Script) LoadedFromCache() bool { return s.fromCache }

// rehydrate re-points sections and call trees at the freshly
// deserialized script and rebuilds the shape and parametric symbol
// dictionaries from the sections, preserving cross-script sharing.
func (s *Script) rehydrate(parent *Script, opts Options) {
	s.parent = parent
	s.opts = opts
	s.shapeDict = map[string]*calltree.ShapeDef{}
	s.paramSymDict = map[string][]*calltree.ParamSymEntry{}
	for _, imp := range s.ImportDict {
		imp.rehydrate(s, opts)
	}
	for _, sec := range s.Sections {
		sec.root = s
		if sec.Tree != nil {
			sec.Tree.SetRoot(s)
		}
		switch sec.Kind {
		case "SHAPE":
			args := []string{}
			if sec.Args != nil {
				args = *sec.Args
			}
			s.shapeDict[sec.ShapeName] = &calltree.ShapeDef{Args: args, Tree: sec.Tree}
		case "IMPORT":
			if imp, ok := s.ImportDict[sec.Namespace]; ok {
				for name, entries := range imp.paramSymDict {
					s.paramSymDict[name] = entries
				}
			}
		default:
			// SYMBOL and LAYER sections inside a parametric context
			// each contribute one entry
			if sec.IsParam != nil && *sec.IsParam {
				s.registerParamEntry(sec)
			}
		}
	}
}

func (s *Script) registerParamEntry(sec *Section) {
	if sec.CleanName == nil || sec.Pattern == nil {
		return
	}
	layer := -1
	if sec.Layer != nil {
		layer = *sec.Layer
	}
	args := []string{}
	if sec.Args != nil {
		args = *sec.Args
	}
	s.paramSymDict[*sec.CleanName] = append(s.paramSymDict[*sec.CleanName], &calltree.ParamSymEntry{
		NamePattern: *sec.Pattern,
		Args:        args,
		Tree:        sec.Tree,
		Layer:       layer,
	})
}

var (
	commentRe = regexp.MustCompile(`(?m)^[ \t]*#[^\n]*$`)
	headRe    = regexp.MustCompile(`(?m)^[ \t]*(SHAPE|SYMBOL|LAYER|IMPORT)\b[^\n]*`)
	wsRe      = regexp.MustCompile(`\s+`)
)

func stripComments(text string) string {
	return commentRe.ReplaceAllString(text, "")
}

// compile splits the text into sections and evaluates them in order.
func (s *Script) compile(text string) error {
	pos := 0
	lastHead := ""
	var last *Section
	for {
		s.updateHash(text)
		loc := headRe.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if lastHead != "" {
			sec, err := newSection(s, lastHead, text[pos:start], last)
			if err != nil {
				return err
			}
			s.Sections = append(s.Sections, sec)
			last = sec
		}
		lastHead = strings.TrimSpace(text[start:end])
		pos = end
	}
	if lastHead != "" {
		sec, err := newSection(s, lastHead, text[pos:], last)
		if err != nil {
			return err
		}
		s.Sections = append(s.Sections, sec)
	}
	s.updateHash(text)
	return s.buildLegend()
}

// updateHash recomputes the five-digit script hash over the
// whitespace-stripped text and the hashes of the imports seen so far.
func (s *Script) updateHash(text string) {
	concat := wsRe.ReplaceAllString(text, "")
	for _, ns := range s.ImportOrder {
		concat += s.ImportDict[ns].Hash
	}
	sum := sha1.Sum([]byte(concat))
	le := make([]byte, len(sum))
	for i, b := range sum {
		le[len(sum)-1-i] = b
	}
	v := new(big.Int).SetBytes(le)
	v.Mod(v, big.NewInt(100000))
	s.Hash = fmt.Sprintf("%05d", v.Int64())
}

// buildLegend rebuilds the `legend` cell when at least one layer is
// named: one text line per layer number (unnamed layers read
// "unnamed"), all on layer 255.
func (s *Script) buildLegend() error {
	hasNamed := false
	for _, name := range s.LayerDict {
		if name != "" {
			hasNamed = true
			break
		}
	}
	if !hasNamed {
		return nil
	}
	s.Lib.Remove("legend")
	cell := s.Lib.GetOrCreateCell("legend")

	nums := make([]int, 0, len(s.LayerDict))
	for num := range s.LayerDict {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	engine := geom.Engine{}
	legend := &geom.Shape{}
	for _, num := range nums {
		name := s.LayerDict[num]
		if name == "" {
			name = "unnamed"
		}
		line, err := engine.Text(geom.TextSpec{
			Text:   fmt.Sprintf("%d: %s", num, name),
			Dy:     8,
			Anchor: "w",
		})
		if err != nil {
			return err
		}
		legend.Translate(0, 10)
		legend.Union(line)
	}
	cell.AddShape(legend, 255)
	return nil
}

// lookupLayerNum resolves a layer name to its number: an existing
// binding wins, then the preferred number, then the lowest free
// number below 1000.
func (s *Script) lookupLayerNum(name string, preferred *int) (int, error) {
	for num, n := range s.LayerDict {
		if n != "" && n == name {
			return num, nil
		}
	}
	if preferred != nil {
		if existing, ok := s.LayerDict[*preferred]; ok && existing != "" && existing != name {
			return 0, plserr.New(plserr.LayerConflict,
				"layer number conflict: wanted to assign layer %q to number %d, but it is bound to %q",
				name, *preferred, existing)
		}
		s.LayerDict[*preferred] = name
		return *preferred, nil
	}
	for i := 0; i < 1000; i++ {
		if _, ok := s.LayerDict[i]; !ok {
			s.LayerDict[i] = name
			return i, nil
		}
	}
	return 0, plserr.New(plserr.DomainError, "no free layer number for %q", name)
}

// importSymbols copies the cells of an imported library into this
// script's library, rewriting remapped layers; duplicate cell names
// are skipped silently.
func (s *Script) importSymbols(lib *gds.Library, layerMap map[int]int) {
	dup := lib.Clone()
	for _, name := range dup.CellNames() {
		cell := dup.Cells[name]
		if len(layerMap) > 0 {
			cell.RemapLayers(layerMap)
		}
		if s.Lib.Cell(name) == nil {
			s.Lib.Cells[name] = cell
		}
	}
}

// Root interface for the calltree package.

// Path returns the script file path.
func (s *Script) Path() string { return s.SPath }

// ScriptHash returns the current five-digit script hash.
func (s *Script) ScriptHash() string { return s.Hash }

// Clock returns the timestamp used for __DATE__ and __TIME__.
func (s *Script) Clock() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now()
}

// Library returns the script's cell library.
func (s *Script) Library() *gds.Library { return s.Lib }

// ParentScript returns the importing script, or nil at the root.
func (s *Script) ParentScript() calltree.Root {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

// GlobalValues returns the script-level assignments.
func (s *Script) GlobalValues() map[string]calltree.Value { return s.Globals }

// ShapeDef looks up a user-defined shape.
func (s *Script) ShapeDef(name string) (*calltree.ShapeDef, bool) {
	def, ok := s.shapeDict[name]
	return def, ok
}

// ImportedShapeDef finds a shape definition in any imported namespace.
func (s *Script) ImportedShapeDef(name string) (calltree.Root, *calltree.ShapeDef, bool) {
	for _, ns := range s.ImportOrder {
		imp := s.ImportDict[ns]
		if def, ok := imp.shapeDict[name]; ok {
			return imp, def, true
		}
	}
	return nil, nil, false
}

// ImportScript resolves a namespace to its compiled script.
func (s *Script) ImportScript(namespace string) (calltree.Root, bool) {
	imp, ok := s.ImportDict[namespace]
	if !ok {
		return nil, false
	}
	return imp, true
}

var paramNameStrip = strings.NewReplacer("-", "", "_", "", "{", "", "}", "")

func normalizeParamName(name string) string {
	return strings.ToLower(paramNameStrip.Replace(name))
}

// FindParamSym matches a parametric symbol modulo case and the
// characters `-_{}`. An exact normalized match wins; otherwise the
// first clean name (in sorted order) the argument is a prefix of.
func (s *Script) FindParamSym(name string) ([]*calltree.ParamSymEntry, bool) {
	want := normalizeParamName(name)
	cleans := make([]string, 0, len(s.paramSymDict))
	for clean := range s.paramSymDict {
		cleans = append(cleans, clean)
	}
	sort.Strings(cleans)
	for _, clean := range cleans {
		if normalizeParamName(clean) == want {
			return s.paramSymDict[clean], true
		}
	}
	for _, clean := range cleans {
		if strings.HasPrefix(normalizeParamName(clean), want) {
			return s.paramSymDict[clean], true
		}
	}
	return nil, false
}
