// Package syntax turns assembly source text into statements: a line
// tokenizer and a recursive-descent parser over the token stream.
package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/inst"
)

// Punctuation identifies an operator, register, bracket, or keyword token.
// Single-character punctuation is represented by its own byte value;
// multi-character spellings get values above the byte range.
type Punctuation int

const (
	PNone Punctuation = 0

	// Multi-character punctuation and keywords.
	PScope    Punctuation = 256 + iota // "::"
	PYields                            // "yields"
	PNoReturn                          // "noreturn"
	PExport                            // "export"
)

func (p Punctuation) String() string {
	switch p {
	case PScope:
		return "::"
	case PYields:
		return "yields"
	case PNoReturn:
		return "noreturn"
	case PExport:
		return "export"
	default:
		if p > 0 && p < 256 {
			return string(byte(p))
		}
		return ""
	}
}

// TokenKind discriminates the token variants.
type TokenKind uint8

const (
	TokEOL TokenKind = iota
	TokIdentifier
	TokLiteral
	TokMnemonic
	TokSuffix
	TokDirective
	TokPunct
)

// Token is one lexical element with its source location.
type Token struct {
	Kind      TokenKind
	Ident     string
	Value     int
	NumType   addr.NumericType
	Mnemonic  inst.Mnemonic
	Suffix    inst.Suffix
	Directive inst.DirectiveName
	Punct     Punctuation
	Loc       asmerr.Location
}

// EndOfLine reports whether this is the line terminator token.
func (t Token) EndOfLine() bool { return t.Kind == TokEOL }

// IsPunct reports whether the token is the given punctuation.
func (t Token) IsPunct(p Punctuation) bool {
	return t.Kind == TokPunct && t.Punct == p
}

// IsChar reports whether the token is the given single-character
// punctuation.
func (t Token) IsChar(ch byte) bool {
	return t.Kind == TokPunct && t.Punct == Punctuation(ch)
}

// IsRegister reports whether the token names one of the reserved registers.
func (t Token) IsRegister() bool {
	return t.IsChar('A') || t.IsChar('S') || t.IsChar('X') || t.IsChar('Y')
}

func (t Token) String() string {
	switch t.Kind {
	case TokEOL:
		return "end of line"
	case TokIdentifier:
		return "identifier " + t.Ident
	case TokLiteral:
		return fmt.Sprintf("literal %d", t.Value)
	case TokMnemonic:
		return "mnemonic " + t.Mnemonic.String()
	case TokSuffix:
		return "suffix " + t.Suffix.String()
	case TokDirective:
		return "directive " + t.Directive.String()
	default:
		spelling := t.Punct.String()
		if len(spelling) > 3 {
			return "keyword `" + spelling + "`"
		}
		if len(spelling) == 1 && spelling[0] >= 'A' && spelling[0] <= 'Z' {
			return "register " + spelling
		}
		return "symbol `" + spelling + "`"
	}
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') ||
		(ch >= 'A' && ch <= 'F')
}

func isDecimalDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentifierFirstChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentifierChar(ch byte) bool {
	return isDecimalDigit(ch) || isIdentifierFirstChar(ch)
}

// Tokenize lexes one source line.  The returned slice always ends with an
// end-of-line token; a ';' comment terminates the line early.
func Tokenize(line string, loc asmerr.Location) ([]Token, error) {
	var result []Token
	sv := line
	for {
		sv = strings.TrimLeft(sv, " \t\r\n")
		if sv == "" || sv[0] == ';' {
			result = append(result, Token{Kind: TokEOL, Loc: loc})
			return result, nil
		}

		// Multi-character punctuation.
		if strings.HasPrefix(sv, "::") {
			sv = sv[2:]
			result = append(result, Token{Kind: TokPunct, Punct: PScope, Loc: loc})
			continue
		}

		// Single-character punctuation and operators.
		switch ch := sv[0]; ch {
		case '(', ')', '[', ']', ',', ':', '#', '+', '-', '*', '/', '@',
			'{', '}', '<', '>', '^':
			sv = sv[1:]
			result = append(result, Token{Kind: TokPunct, Punct: Punctuation(ch), Loc: loc})
			continue
		}

		// Hexadecimal literal: the digit count picks the numeric type
		// ("$00" is a byte, "$0000" a word).
		hexPrefix := false
		if len(sv) >= 2 && sv[0] == '$' && isHexDigit(sv[1]) {
			hexPrefix = true
			sv = sv[1:]
		} else if len(sv) >= 3 && sv[0] == '0' && (sv[1] == 'x' || sv[1] == 'X') &&
			isHexDigit(sv[2]) {
			hexPrefix = true
			sv = sv[2:]
		}
		if hexPrefix {
			digits := 0
			for digits < len(sv) && isHexDigit(sv[digits]) {
				digits++
			}
			value, _ := strconv.ParseInt(sv[:digits], 16, 64)
			numType := addr.Long
			if digits <= 2 {
				numType = addr.Byte
			} else if digits <= 4 {
				numType = addr.Word
			}
			sv = sv[digits:]
			result = append(result, Token{
				Kind: TokLiteral, Value: int(value), NumType: numType, Loc: loc})
			continue
		}

		// Decimal literal, of unknown width.
		if isDecimalDigit(sv[0]) {
			digits := 0
			for digits < len(sv) && isDecimalDigit(sv[digits]) {
				digits++
			}
			value, _ := strconv.ParseInt(sv[:digits], 10, 64)
			sv = sv[digits:]
			result = append(result, Token{
				Kind: TokLiteral, Value: int(value), NumType: addr.Unknown, Loc: loc})
			continue
		}

		// Dotted names: directives and width suffixes.
		if sv[0] == '.' {
			end := 1
			for end < len(sv) && isIdentifierChar(sv[end]) {
				end++
			}
			name := sv[:end]
			sv = sv[end:]
			if directive, ok := inst.ToDirectiveName(name); ok {
				result = append(result, Token{Kind: TokDirective, Directive: directive, Loc: loc})
				continue
			}
			if suffix, ok := inst.ToSuffix(name); ok {
				result = append(result, Token{Kind: TokSuffix, Suffix: suffix, Loc: loc})
				continue
			}
			return nil, asmerr.New("Unrecognized dotted name '%s' in input", name).
				WithLocation(loc)
		}

		// Identifiers, mnemonics, registers, and keywords.
		if isIdentifierFirstChar(sv[0]) {
			end := 1
			for end < len(sv) && isIdentifierChar(sv[end]) {
				end++
			}
			word := sv[:end]
			sv = sv[end:]
			if mnemonic, ok := inst.ToMnemonic(word); ok {
				result = append(result, Token{Kind: TokMnemonic, Mnemonic: mnemonic, Loc: loc})
				continue
			}
			if len(word) == 1 {
				switch strings.ToUpper(word) {
				case "A", "S", "X", "Y":
					result = append(result, Token{
						Kind: TokPunct, Punct: Punctuation(strings.ToUpper(word)[0]), Loc: loc})
					continue
				}
			}
			switch strings.ToLower(word) {
			case "yields":
				result = append(result, Token{Kind: TokPunct, Punct: PYields, Loc: loc})
				continue
			case "noreturn":
				result = append(result, Token{Kind: TokPunct, Punct: PNoReturn, Loc: loc})
				continue
			case "export":
				result = append(result, Token{Kind: TokPunct, Punct: PExport, Loc: loc})
				continue
			}
			result = append(result, Token{Kind: TokIdentifier, Ident: word, Loc: loc})
			continue
		}

		return nil, asmerr.New("Unexpected character '%c' in input", sv[0]).
			WithLocation(loc)
	}
}
