package lexer

import (
	"github.com/rthome/SpeedCalc/internal/token"
)

// Lexer converts source text into a stream of tokens on demand.
type Lexer struct {
	input string
	start int // first byte of the token being scanned
	pos   int // next byte to read
	line  int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
	}
}

// NextToken returns the next token from the input. Once the input is
// exhausted every call returns an EOF token.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()
	l.start = l.pos

	if l.atEnd() {
		return l.makeToken(token.EOF)
	}

	ch := l.readChar()
	if isDigit(ch) {
		return l.readNumber()
	}
	if isLetter(ch) {
		return l.readIdentifier()
	}

	switch ch {
	case '(':
		return l.makeToken(token.LParen)
	case ')':
		return l.makeToken(token.RParen)
	case '{':
		return l.makeToken(token.LBrace)
	case '}':
		return l.makeToken(token.RBrace)
	case ',':
		return l.makeToken(token.Comma)
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber()
		}
		return l.makeToken(token.Dot)
	case ':':
		return l.makeToken(token.Colon)
	case ';':
		return l.makeToken(token.Semicolon)
	case '-':
		return l.makeToken(l.choose('=', token.MinusEqual, token.Minus))
	case '+':
		return l.makeToken(l.choose('=', token.PlusEqual, token.Plus))
	case '/':
		return l.makeToken(l.choose('=', token.SlashEqual, token.Slash))
	case '*':
		if l.match('*') {
			return l.makeToken(l.choose('=', token.StarStarEqual, token.StarStar))
		}
		return l.makeToken(l.choose('=', token.StarEqual, token.Star))
	case '!':
		return l.makeToken(l.choose('=', token.BangEqual, token.Bang))
	case '=':
		return l.makeToken(l.choose('=', token.EqualEqual, token.Equal))
	case '<':
		return l.makeToken(l.choose('=', token.LessEqual, token.Less))
	case '>':
		return l.makeToken(l.choose('=', token.GreaterEqual, token.Greater))
	}

	return token.Token{Kind: token.Error, Lexeme: "Unexpected character", Line: l.line}
}

// Line reports the line the cursor is currently on.
func (l *Lexer) Line() int {
	return l.line
}

func (l *Lexer) makeToken(kind token.Kind) token.Token {
	return token.Token{Kind: kind, Lexeme: l.input[l.start:l.pos], Line: l.line}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.input[l.pos] {
		case ' ', '\r', '\t':
			l.pos++
		case '\n':
			l.pos++
			l.line++
		case '/':
			if l.peekNext() != '/' {
				return
			}
			l.skipLineComment()
		default:
			return
		}
	}
}

func (l *Lexer) skipLineComment() {
	for !l.atEnd() && l.input[l.pos] != '\n' {
		l.pos++
	}
}

func (l *Lexer) readNumber() token.Token {
	for isDigit(l.peekChar()) {
		l.pos++
	}
	if l.peekChar() == '.' && isDigit(l.peekNext()) {
		l.pos++
		for isDigit(l.peekChar()) {
			l.pos++
		}
	}
	return l.makeToken(token.Number)
}

func (l *Lexer) readIdentifier() token.Token {
	for isLetter(l.peekChar()) || isDigit(l.peekChar()) {
		l.pos++
	}
	return l.makeToken(l.identifierKind())
}

// identifierKind resolves keywords by dispatching on the first byte and
// comparing the remaining suffix.
func (l *Lexer) identifierKind() token.Kind {
	switch l.input[l.start] {
	case 'a':
		return l.checkKeyword(1, "nd", token.And)
	case 'b':
		return l.checkKeyword(1, "reak", token.Break)
	case 'c':
		return l.checkKeyword(1, "ontinue", token.Continue)
	case 'e':
		return l.checkKeyword(1, "lse", token.Else)
	case 'f':
		if l.pos-l.start > 1 {
			switch l.input[l.start+1] {
			case 'a':
				return l.checkKeyword(2, "lse", token.False)
			case 'n':
				return l.checkKeyword(2, "", token.Fn)
			case 'o':
				return l.checkKeyword(2, "r", token.For)
			}
		}
	case 'i':
		return l.checkKeyword(1, "f", token.If)
	case 'm':
		return l.checkKeyword(1, "od", token.Mod)
	case 'o':
		return l.checkKeyword(1, "r", token.Or)
	case 'p':
		return l.checkKeyword(1, "rint", token.Print)
	case 'r':
		return l.checkKeyword(1, "eturn", token.Return)
	case 't':
		return l.checkKeyword(1, "rue", token.True)
	case 'v':
		return l.checkKeyword(1, "ar", token.Var)
	case 'w':
		return l.checkKeyword(1, "hile", token.While)
	}
	return token.Ident
}

func (l *Lexer) checkKeyword(offset int, rest string, kind token.Kind) token.Kind {
	if l.pos-l.start == offset+len(rest) && l.input[l.start+offset:l.pos] == rest {
		return kind
	}
	return token.Ident
}

func (l *Lexer) choose(expected byte, matched, otherwise token.Kind) token.Kind {
	if l.match(expected) {
		return matched
	}
	return otherwise
}

func (l *Lexer) match(expected byte) bool {
	if l.peekChar() != expected {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) readChar() byte {
	ch := l.input[l.pos]
	l.pos++
	return ch
}

func (l *Lexer) peekChar() byte {
	if l.atEnd() {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
