// Package script implements the section layer of the pls compiler:
// splitting a script into LAYER/SHAPE/SYMBOL/IMPORT sections, layer
// bookkeeping, imports with layer remapping, the script hash and the
// result cache.
package script

import (
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/maskfab/plsc/pkg/plserr"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validName enforces the identifier shape of layer, shape, symbol and
// namespace names.
func validName(n string) error {
	if !identRe.MatchString(n) {
		return plserr.New(plserr.ParseError, "names must be identifiers, got %q", n)
	}
	return nil
}

// layerHeader covers `LAYER n`, `LAYER name` and `LAYER n name`.
type layerHeader struct {
	Num  *int    `@Int?`
	Name *string `@Ident?`
}

// shapeHeader covers `SHAPE name(arg1, arg2, ...)`.
type shapeHeader struct {
	Name string   `@Ident`
	Args []string `"(" ( @Ident ( "," @Ident )* )? ")"`
}

// symbolHeader covers `SYMBOL name` and `SYMBOL pattern(args...)`;
// patterns may contain `{}` placeholder runs.
type symbolHeader struct {
	Pattern string      `@Pattern`
	Parens  *symbolArgs `@@?`
}

type symbolArgs struct {
	Args []string `"(" ( @Pattern ( "," @Pattern )* )? ")"`
}

// importHeader covers `IMPORT path [AS namespace]`.
type importHeader struct {
	Path      string  `@Path`
	Namespace *string `( "AS" @Path )?`
}

var (
	wordLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Int", Pattern: `\d+`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
		{Name: "Punct", Pattern: `[(),]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
	patternLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Pattern", Pattern: `[A-Za-z0-9_{}]+`},
		{Name: "Punct", Pattern: `[(),]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
	pathLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Path", Pattern: `[^\s]+`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	layerParser = participle.MustBuild[layerHeader](
		participle.Lexer(wordLexer), participle.Elide("Whitespace"))
	shapeParser = participle.MustBuild[shapeHeader](
		participle.Lexer(wordLexer), participle.Elide("Whitespace"))
	symbolParser = participle.MustBuild[symbolHeader](
		participle.Lexer(patternLexer), participle.Elide("Whitespace"))
	importParser = participle.MustBuild[importHeader](
		participle.Lexer(pathLexer), participle.Elide("Whitespace"))
)

// headerKeyword splits a section header into its keyword and the rest.
func headerKeyword(head string) (string, string) {
	head = strings.TrimSpace(head)
	if i := strings.IndexAny(head, " \t"); i >= 0 {
		return head[:i], strings.TrimSpace(head[i:])
	}
	return head, ""
}

// cleanSymbolName strips every `{...}` placeholder run from a symbol
// name pattern.
func cleanSymbolName(pattern string) string {
	var sb strings.Builder
	skip := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '{' {
			skip = true
		}
		if !skip {
			sb.WriteByte(c)
		}
		if c == '}' {
			skip = false
		}
	}
	return sb.String()
}
