package compiler

import (
	"github.com/rthome/SpeedCalc/internal/token"
)

func (p *parser) declaration() {
	switch {
	case p.match(token.Fn):
		p.fnDeclaration()
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) statement() {
	switch {
	case p.match(token.Print):
		p.printStatement()
	case p.match(token.If):
		p.ifStatement()
	case p.match(token.While):
		p.whileStatement()
	case p.match(token.For):
		p.forStatement()
	case p.match(token.Break):
		p.breakStatement()
	case p.match(token.Continue):
		p.continueStatement()
	case p.match(token.Return):
		p.returnStatement()
	case p.match(token.LBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) block() {
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBrace, "Expect '}' after block")
}

func (p *parser) parseVariable(message string) byte {
	p.consume(token.Ident, message)
	p.declareVariable()
	if p.fc().scopeDepth > 0 {
		return 0
	}
	return p.makeConst(p.previous.Lexeme)
}

func (p *parser) defineVariable(global byte) {
	if p.fc().scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitBytes(OP_DEFINE_GLOBAL, global)
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name")
	if p.match(token.Equal) {
		p.expression()
	} else {
		p.emitByte(OP_FALSE)
	}
	p.consume(token.Semicolon, "Expect ';' after variable declaration")
	p.defineVariable(global)
}

func (p *parser) fnDeclaration() {
	global := p.parseVariable("Expect function name")
	p.markInitialized()
	p.function(p.previous.Lexeme)
	p.defineVariable(global)
}

// function compiles a parameter list and body into a nested Function and
// emits it as a constant of the enclosing chunk.
func (p *parser) function(name string) {
	fc := p.pushCompiler(name)
	p.beginScope()

	p.consume(token.LParen, "Expect '(' after function name")
	if !p.check(token.RParen) {
		for {
			fc.fn.Arity++
			if fc.fn.Arity > maxArgs {
				p.errorAtCurrent("Can't have more than 255 parameters")
			}
			p.parseVariable("Expect parameter name")
			p.markInitialized()
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RParen, "Expect ')' after parameters")

	if p.match(token.Equal) {
		p.expression()
		p.consume(token.Semicolon, "Expect ';' after function expression")
		p.emitByte(OP_RETURN)
	} else {
		p.consume(token.LBrace, "Expect '{' before function body")
		p.block()
		p.emitReturn()
	}

	fn := p.popCompiler()
	p.emitConst(fn)
}

func (p *parser) printStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after value")
	p.emitByte(OP_PRINT)
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after expression")
	p.emitByte(OP_POP)
}

func (p *parser) ifStatement() {
	p.expression()
	p.consume(token.Colon, "Expect ':' after condition")

	thenJump := p.emitJump(OP_JUMP_IF_FALSE)
	p.emitByte(OP_POP)
	p.statement()

	elseJump := p.emitJump(OP_JUMP)
	p.patchJump(thenJump)
	p.emitByte(OP_POP)

	if p.match(token.Else) {
		p.consume(token.Colon, "Expect ':' after 'else'")
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.expression()
	p.consume(token.Colon, "Expect ':' after condition")

	exitJump := p.emitJump(OP_JUMP_IF_FALSE)
	p.emitByte(OP_POP)

	p.pushLoop(loopStart)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitByte(OP_POP)
	p.popLoop()
}

func (p *parser) forStatement() {
	p.beginScope()

	switch {
	case p.match(token.Semicolon):
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.chunk().Code)
	exitJump := -1
	if !p.match(token.Semicolon) {
		p.expression()
		p.consume(token.Semicolon, "Expect ';' after loop condition")
		exitJump = p.emitJump(OP_JUMP_IF_FALSE)
		p.emitByte(OP_POP)
	}

	if !p.match(token.Colon) {
		bodyJump := p.emitJump(OP_JUMP)
		incrementStart := len(p.chunk().Code)
		p.expression()
		p.emitByte(OP_POP)
		p.consume(token.Colon, "Expect ':' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.pushLoop(loopStart)
	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitByte(OP_POP)
	}
	p.popLoop()

	p.endScope()
}

func (p *parser) breakStatement() {
	loop := p.currentLoop()
	if loop == nil {
		p.error("Can't use 'break' outside of a loop")
		p.consume(token.Semicolon, "Expect ';' after 'break'")
		return
	}
	p.consume(token.Semicolon, "Expect ';' after 'break'")
	p.discardLoopLocals(loop)
	loop.breaks = append(loop.breaks, p.emitJump(OP_JUMP))
}

func (p *parser) continueStatement() {
	loop := p.currentLoop()
	if loop == nil {
		p.error("Can't use 'continue' outside of a loop")
		p.consume(token.Semicolon, "Expect ';' after 'continue'")
		return
	}
	p.consume(token.Semicolon, "Expect ';' after 'continue'")
	p.discardLoopLocals(loop)
	p.emitLoop(loop.start)
}

func (p *parser) returnStatement() {
	if len(p.compilers) == 1 {
		p.error("Can't return from top-level code")
	}
	if p.match(token.Semicolon) {
		p.emitReturn()
		return
	}
	p.expression()
	p.consume(token.Semicolon, "Expect ';' after return value")
	p.emitByte(OP_RETURN)
}
