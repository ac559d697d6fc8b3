package compiler

import (
	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/lexer"
	"github.com/rthome/SpeedCalc/internal/token"
)

const (
	maxLocals = 256
	maxArgs   = 255
	maxConsts = 256
	maxJump   = 0xffff
)

// Compile parses and compiles source in a single pass into the top-level
// script function. On failure it returns an *Error listing every
// diagnostic.
func Compile(source string) (*Function, error) {
	p := newParser(source)
	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	return p.finish()
}

// CompileExpression compiles a single expression. The resulting function
// returns the expression's value instead of false.
func CompileExpression(source string) (*Function, error) {
	p := newParser(source)
	p.advance()
	p.expression()
	p.consume(token.EOF, "Expect end of expression")
	p.emitByte(OP_RETURN)
	return p.finishRaw()
}

type parser struct {
	lex       *lexer.Lexer
	current   token.Token
	previous  token.Token
	panicMode bool

	diagnostics []Diagnostic
	compilers   []*funcCompiler
}

type funcCompiler struct {
	fn         *Function
	locals     []local
	scopeDepth int
	loops      []*loopState
}

func newParser(source string) *parser {
	p := &parser{lex: lexer.New(source)}
	p.pushCompiler("")
	return p
}

func (p *parser) finish() (*Function, error) {
	p.emitReturn()
	return p.finishRaw()
}

func (p *parser) finishRaw() (*Function, error) {
	fn := p.popCompiler()
	if len(p.diagnostics) > 0 {
		return nil, &Error{diagnostics: p.diagnostics}
	}
	return fn, nil
}

// pushCompiler starts a new function. Slot 0 holds the function itself.
func (p *parser) pushCompiler(name string) *funcCompiler {
	fc := &funcCompiler{
		fn:     bytecode.NewFunction(name, 0),
		locals: make([]local, 0, maxLocals),
	}
	fc.locals = append(fc.locals, local{name: "", depth: 0})
	p.compilers = append(p.compilers, fc)
	return fc
}

func (p *parser) popCompiler() *Function {
	fc := p.fc()
	p.compilers = p.compilers[:len(p.compilers)-1]
	return fc.fn
}

func (p *parser) fc() *funcCompiler {
	return p.compilers[len(p.compilers)-1]
}

func (p *parser) chunk() *Chunk {
	return p.fc().fn.Chunk
}

// token stream

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.NextToken()
		if p.current.Kind != token.Error {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) check(kind token.Kind) bool {
	return p.current.Kind == kind
}

func (p *parser) match(kind token.Kind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(kind token.Kind, message string) {
	if p.check(kind) {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// errors

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	d := Diagnostic{Line: tok.Line, Message: message}
	switch tok.Kind {
	case token.EOF:
		d.Where = "at end"
	case token.Error:
	default:
		d.Where = "at '" + tok.Lexeme + "'"
	}
	p.diagnostics = append(p.diagnostics, d)
}

func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.Semicolon {
			return
		}
		switch p.current.Kind {
		case token.Fn, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// emitters

func (p *parser) emitByte(b byte) {
	p.chunk().Write(b, p.previous.Line)
}

func (p *parser) emitBytes(b ...byte) {
	for _, v := range b {
		p.emitByte(v)
	}
}

func (p *parser) emitReturn() {
	p.emitBytes(OP_FALSE, OP_RETURN)
}

func (p *parser) makeConst(v interface{}) byte {
	idx := p.chunk().AddConst(v)
	if idx >= maxConsts {
		p.error("Too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (p *parser) emitConst(v interface{}) {
	p.emitBytes(OP_CONSTANT, p.makeConst(v))
}

// emitJump writes op with a placeholder offset and returns the offset of
// the placeholder for patchJump.
func (p *parser) emitJump(op byte) int {
	p.emitBytes(op, 0xff, 0xff)
	return len(p.chunk().Code) - 2
}

func (p *parser) patchJump(pos int) {
	code := p.chunk().Code
	jump := len(code) - pos - 2
	if jump > maxJump {
		p.error("Too much code to jump over")
	}
	code[pos] = byte(jump >> 8)
	code[pos+1] = byte(jump)
}

func (p *parser) emitLoop(start int) {
	p.emitByte(OP_LOOP)
	offset := len(p.chunk().Code) - start + 2
	if offset > maxJump {
		p.error("Loop body too large")
	}
	p.emitBytes(byte(offset>>8), byte(offset))
}
