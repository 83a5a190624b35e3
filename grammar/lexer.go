package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},

		// SSA names, function symbols and block labels
		{"ValueRef", `%[a-zA-Z0-9_]+`, nil},
		{"Symbol", `@[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"BlockLabel", `\^[a-zA-Z0-9_]+`, nil},

		// Shape prefix entries such as "?x" and "8x" (must come before numbers)
		{"ShapeDim", `(\?|[0-9]+)x`, nil},

		{"Arrow", `->`, nil},

		// Numeric literals
		{"Float", `-?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Int", `-?[0-9]+`, nil},

		// Op names are dotted identifiers
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},

		// Punctuation (must come after Arrow)
		{"Punct", `[{}()\[\]<>,:=*+?-]`, nil},
	},
})
