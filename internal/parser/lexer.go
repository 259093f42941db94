package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer splits rule text into tokens. Dice terms are lexed as a single token
// (e.g. "4d6kh3", "1d10!>9", "2d20r<2") and decomposed later.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Dice", Pattern: `\d+[dD]\d+(?:[kK][hHlL]?\d+|[rR](?:<=|>=|<|>|=)?\d+|!(?:>\d+)?)*`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `"[^"]*"|'[^']*'`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Operator", Pattern: `\*\*|//|==|!=|<=|>=|\+=|-=|\*=|/=|%=|[-+*/%<>=!(),.:;\[\]]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var options = []participle.Option{
	participle.Lexer(Lexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(64),
}

// Build creates the expression parser.
func Build() *participle.Parser[Expression] {
	return participle.MustBuild[Expression](options...)
}

// BuildProgram creates the parser for rule steps.
func BuildProgram() *participle.Parser[Program] {
	return participle.MustBuild[Program](options...)
}
