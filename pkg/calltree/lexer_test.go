package calltree

import (
	"errors"
	"testing"

	"github.com/maskfab/plsc/pkg/plserr"
)

func lex(t *testing.T, src string) []Value {
	t.Helper()
	var st lexState
	tokens, err := lexText(src, &st)
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	return tokens
}

func TestLexNumbersAndNames(t *testing.T) {
	tokens := lex(t, "foo 12 3.5 1e3 .5")
	kinds := []Kind{KindName, KindInt, KindFloat, KindInt, KindFloat}
	if len(tokens) != len(kinds) {
		t.Fatalf("expected %d tokens, got %d: %v", len(kinds), len(tokens), tokens)
	}
	for i, k := range kinds {
		if tokens[i].Kind != k {
			t.Errorf("token %d: expected %s, got %s", i, k, tokens[i].Kind)
		}
	}
	if tokens[1].I != 12 {
		t.Errorf("expected 12, got %d", tokens[1].I)
	}
	if tokens[3].I != 1000 {
		t.Errorf("expected 1e3 to lex as int 1000, got %d", tokens[3].I)
	}
}

func TestLexIntClassificationIsAbsolute(t *testing.T) {
	tokens := lex(t, "2.0000000001 2.001")
	if tokens[0].Kind != KindInt {
		t.Errorf("2.0000000001 should classify as int, got %s", tokens[0].Kind)
	}
	if tokens[1].Kind != KindFloat {
		t.Errorf("2.001 should classify as float, got %s", tokens[1].Kind)
	}
}

func TestLexAssignName(t *testing.T) {
	tokens := lex(t, "dx = 5")
	if tokens[0].Kind != KindAssignName {
		t.Fatalf("expected assignname, got %s", tokens[0].Kind)
	}
	if !tokens[1].IsOp("=") {
		t.Fatalf("expected '=', got %v", tokens[1])
	}
}

func TestLexPointMode(t *testing.T) {
	tokens := lex(t, "[1, 2]")
	want := []string{"pstart", "", "psep", "", "pend"}
	for i, op := range want {
		if op == "" {
			continue
		}
		if !tokens[i].IsOp(op) {
			t.Errorf("token %d: expected operator %q, got %v", i, op, tokens[i])
		}
	}
}

func TestLexObjectMode(t *testing.T) {
	tokens := lex(t, "{a=1, b=2}")
	var ops []string
	for _, tok := range tokens {
		if tok.Kind == KindOperator {
			ops = append(ops, tok.S)
		}
	}
	want := []string{"ostart", "oassign", "osep", "oassign", "oend"}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: expected %q, got %q", i, want[i], ops[i])
		}
	}
}

func TestLexNestedObjectFails(t *testing.T) {
	var st lexState
	if _, err := lexText("{a={b=1}}", &st); err == nil {
		t.Fatal("expected error for nested object")
	}
}

func TestLexString(t *testing.T) {
	tokens := lex(t, `"hello world" 'single'`)
	if tokens[0].Kind != KindString || tokens[0].S != "hello world" {
		t.Fatalf("bad string token: %v", tokens[0])
	}
	if tokens[1].S != "single" {
		t.Fatalf("bad single-quoted token: %v", tokens[1])
	}
}

func TestLexUnterminatedString(t *testing.T) {
	var st lexState
	_, err := lexText(`"oops`, &st)
	if !plserr.IsKind(err, plserr.LexError) {
		t.Fatalf("expected LexError, got %v", err)
	}
}

func TestLexUnexpectedCharacter(t *testing.T) {
	var st lexState
	_, err := lexText("a ; b", &st)
	if !plserr.IsKind(err, plserr.LexError) {
		t.Fatalf("expected LexError, got %v", err)
	}
}

// every token list re-prints to a string that re-lexes identically
func TestLexRoundTrip(t *testing.T) {
	sources := []string{
		`rect . translate`,
		`1 + 2 * 3 - 4 / 5 ^ 6`,
		`[1, 2] + [3.5, 4]`,
		`{a=1, b="x"}`,
		`dx = 10`,
		`"text" + name_1`,
	}
	for _, src := range sources {
		first := lex(t, src)
		printed := PrintTokens(first)
		second := lex(t, printed)
		if len(first) != len(second) {
			t.Fatalf("%q: round trip changed token count: %d vs %d", src, len(first), len(second))
		}
		for i := range first {
			a, b := first[i], second[i]
			if a.Kind != b.Kind || a.S != b.S || a.I != b.I || a.F != b.F {
				t.Errorf("%q: token %d differs: %v vs %v", src, i, a, b)
			}
		}
	}
}

func TestLexErrorKindMatching(t *testing.T) {
	var st lexState
	_, err := lexText(`"unterminated`, &st)
	var pe *plserr.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *plserr.Error, got %T", err)
	}
	if pe.Kind != plserr.LexError {
		t.Errorf("expected LexError kind, got %s", pe.Kind)
	}
}
