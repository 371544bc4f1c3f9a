package calltree

import (
	"math"
	"strconv"
	"strings"

	"github.com/maskfab/plsc/pkg/plserr"
)

// lexState carries the point/object bracket modes across the text
// children of one call-tree node.
type lexState struct {
	inPoint bool
	inObj   bool
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// classifyNumber tags the parsed run as Int when it is within 1e-9 of
// an integer, Float otherwise.
func classifyNumber(run string) (Value, error) {
	n, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return Value{}, plserr.New(plserr.LexError, "bad number literal %q", run)
	}
	if math.Abs(n-math.Round(n)) < 1e-9 {
		return IntValue(int64(math.Round(n))), nil
	}
	return FloatValue(n), nil
}

// lexText scans one text child into tokens. Comments are already
// stripped by the section parser; strings know no escapes.
func lexText(text string, st *lexState) ([]Value, error) {
	var out []Value
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"' || c == '\'':
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return nil, plserr.New(plserr.LexError, "unterminated string: %s", shorten(text[i:]))
			}
			out = append(out, StringValue(text[i+1:i+1+end]))
			i += end + 2

		case isDigit(c) || (c == '.' && i+1 < len(text) && isDigit(text[i+1])):
			j := i
			for j < len(text) {
				d := text[j]
				if isDigit(d) || d == '.' || d == 'e' || d == 'E' {
					j++
					continue
				}
				if (d == '+' || d == '-') && j > i && (text[j-1] == 'e' || text[j-1] == 'E') {
					j++
					continue
				}
				break
			}
			v, err := classifyNumber(text[i:j])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			out = append(out, NameValue(text[i:j]))
			i = j

		case c == '[':
			out = append(out, OperatorValue("pstart"))
			st.inPoint = true
			i++

		case c == ']':
			out = append(out, OperatorValue("pend"))
			st.inPoint = false
			i++

		case c == '{':
			if st.inObj {
				return nil, plserr.New(plserr.LexError, "nested '{' in object")
			}
			out = append(out, OperatorValue("ostart"))
			st.inObj = true
			i++

		case c == '}':
			out = append(out, OperatorValue("oend"))
			st.inObj = false
			i++

		case c == ',':
			switch {
			case st.inPoint:
				out = append(out, OperatorValue("psep"))
			case st.inObj:
				out = append(out, OperatorValue("osep"))
			default:
				out = append(out, OperatorValue(","))
			}
			i++

		case c == '=':
			if st.inObj && !st.inPoint {
				out = append(out, OperatorValue("oassign"))
			} else {
				out = append(out, OperatorValue("="))
			}
			i++

		case c == '.' || c == '^' || c == '*' || c == '/' || c == '+' || c == '-':
			out = append(out, OperatorValue(string(c)))
			i++

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		default:
			return nil, plserr.New(plserr.LexError, "unexpected character %q", string(c))
		}
	}

	// an identifier directly followed by '=' is an assignment target
	for k := 0; k+1 < len(out); k++ {
		if out[k].Kind == KindName && out[k+1].IsOp("=") {
			out[k].Kind = KindAssignName
		}
	}
	return out, nil
}

// PrintTokens renders a token list with canonical spacing such that
// re-lexing reproduces the same list.
func PrintTokens(tokens []Value) string {
	var sb strings.Builder
	for i, t := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch t.Kind {
		case KindInt:
			sb.WriteString(strconv.FormatInt(t.I, 10))
		case KindFloat:
			sb.WriteString(strconv.FormatFloat(t.F, 'g', -1, 64))
		case KindString:
			sb.WriteByte('"')
			sb.WriteString(t.S)
			sb.WriteByte('"')
		case KindName, KindAssignName:
			sb.WriteString(t.S)
		case KindOperator:
			switch t.S {
			case "pstart":
				sb.WriteString("[")
			case "pend":
				sb.WriteString("]")
			case "psep", "osep":
				sb.WriteString(",")
			case "ostart":
				sb.WriteString("{")
			case "oend":
				sb.WriteString("}")
			case "oassign":
				sb.WriteString("=")
			default:
				sb.WriteString(t.S)
			}
		}
	}
	return sb.String()
}

// shorten compresses whitespace and trims long context excerpts for
// error messages.
func shorten(t string) string {
	t = strings.Join(strings.Fields(t), " ")
	const max = 60
	if len(t) > max {
		return t[:max/2-2] + "..." + t[len(t)-max/2+1:]
	}
	return t
}
