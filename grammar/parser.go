package grammar

import (
	"github.com/alecthomas/participle/v2"
)

var irParser = participle.MustBuild[Program](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(3),
)

// ParseString parses textual IR. Errors are participle.Error values and
// carry the offending position.
func ParseString(filename, source string) (*Program, error) {
	return irParser.ParseString(filename, source)
}
