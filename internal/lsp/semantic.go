package lsp

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"vecsplit/grammar"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into SemanticTokenTypes
// TokenModifiers is a bitmask based on SemanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int
	TokenModifiers int
}

var builtinTypes = map[string]bool{
	"index": true, "i1": true, "i8": true, "i16": true, "i32": true, "i64": true,
	"f16": true, "f32": true, "f64": true,
	"memref": true, "vector": true, "strided": true, "offset": true,
}

var keywords = map[string]bool{
	"func": true, "affine_map": true, "true": true, "false": true,
}

// collectSemanticTokens lexes the text rather than walking the parsed
// program, so a file with syntax errors is still highlighted up to the
// first token the lexer cannot match.
func collectSemanticTokens(text string) []SemanticToken {
	var tokens []SemanticToken

	symbols := grammar.IRLexer.Symbols()
	names := make(map[lexer.TokenType]string, len(symbols))
	for name, t := range symbols {
		names[t] = name
	}

	lex, err := grammar.IRLexer.LexString("", text)
	if err != nil {
		return tokens
	}

	var prev string
	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			break
		}
		kind := names[tok.Type]
		if kind == "Whitespace" {
			continue
		}

		tokenType, modifiers := classify(kind, tok.Value, prev)
		if tokenType != "" {
			tokens = append(tokens, makeToken(tok.Pos, tok.Value, tokenType, modifiers))
		}
		if kind != "Comment" {
			prev = tok.Value
		}
	}

	return tokens
}

func classify(kind, value, prev string) (string, int) {
	switch kind {
	case "Comment":
		return "comment", 0
	case "ValueRef":
		return "variable", 0
	case "Symbol":
		if prev == "func" {
			return "function", modifierBit("declaration")
		}
		return "function", 0
	case "BlockLabel":
		return "namespace", 0
	case "Int", "Float":
		return "number", 0
	case "ShapeDim":
		return "number", 0
	case "Ident":
		switch {
		case keywords[value]:
			return "keyword", 0
		case builtinTypes[value]:
			return "type", 0
		case strings.Contains(value, "."):
			// Operation names are the only dotted identifiers.
			return "function", 0
		default:
			return "property", 0
		}
	}
	return "", 0
}

func makeToken(pos lexer.Position, value, tokenType string, modifiers int) SemanticToken {
	return SemanticToken{
		Line:           uint32(pos.Line - 1),
		StartChar:      uint32(pos.Column - 1),
		Length:         uint32(len(value)),
		TokenType:      tokenTypeIndex(tokenType),
		TokenModifiers: modifiers,
	}
}

func tokenTypeIndex(name string) int {
	for i, t := range SemanticTokenTypes {
		if t == name {
			return i
		}
	}
	return 0
}

func modifierBit(name string) int {
	for i, m := range SemanticTokenModifiers {
		if m == name {
			return 1 << i
		}
	}
	return 0
}
