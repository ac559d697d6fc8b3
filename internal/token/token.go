package token

// Kind identifies the category of a token.
type Kind int

// Token carries a lexeme along with the source line it was read from.
// Error tokens carry the diagnostic message in Lexeme.
type Token struct {
	Kind   Kind
	Lexeme string
	Line   int
}

const (
	Error Kind = iota
	EOF

	// delimiters
	LParen
	RParen
	LBrace
	RBrace
	Comma
	Dot
	Colon
	Semicolon

	// operators
	Minus
	MinusEqual
	Plus
	PlusEqual
	Slash
	SlashEqual
	Star
	StarEqual
	StarStar
	StarStarEqual
	Bang
	BangEqual
	Equal
	EqualEqual
	Greater
	GreaterEqual
	Less
	LessEqual

	// literals
	Ident
	Number

	// keywords
	And
	Break
	Continue
	Else
	False
	Fn
	For
	If
	Mod
	Or
	Print
	Return
	True
	Var
	While

	numKinds
)

// Count is the number of token kinds; tables indexed by Kind use it as length.
const Count = int(numKinds)

var names = [...]string{
	Error:         "ERROR",
	EOF:           "EOF",
	LParen:        "(",
	RParen:        ")",
	LBrace:        "{",
	RBrace:        "}",
	Comma:         ",",
	Dot:           ".",
	Colon:         ":",
	Semicolon:     ";",
	Minus:         "-",
	MinusEqual:    "-=",
	Plus:          "+",
	PlusEqual:     "+=",
	Slash:         "/",
	SlashEqual:    "/=",
	Star:          "*",
	StarEqual:     "*=",
	StarStar:      "**",
	StarStarEqual: "**=",
	Bang:          "!",
	BangEqual:     "!=",
	Equal:         "=",
	EqualEqual:    "==",
	Greater:       ">",
	GreaterEqual:  ">=",
	Less:          "<",
	LessEqual:     "<=",
	Ident:         "IDENT",
	Number:        "NUMBER",
	And:           "and",
	Break:         "break",
	Continue:      "continue",
	Else:          "else",
	False:         "false",
	Fn:            "fn",
	For:           "for",
	If:            "if",
	Mod:           "mod",
	Or:            "or",
	Print:         "print",
	Return:        "return",
	True:          "true",
	Var:           "var",
	While:         "while",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// Keywords lists the reserved words in source order of their kinds.
func Keywords() []string {
	out := make([]string, 0, int(While-And)+1)
	for k := And; k <= While; k++ {
		out = append(out, names[k])
	}
	return out
}
