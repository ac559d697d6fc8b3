package compiler

import (
	"github.com/rthome/SpeedCalc/internal/number"
	"github.com/rthome/SpeedCalc/internal/token"
)

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precExponent
	precUnary
	precCall
	precPrimary
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules [token.Count]parseRule

func init() {
	rules[token.LParen] = parseRule{(*parser).grouping, (*parser).call, precCall}
	rules[token.Minus] = parseRule{(*parser).unary, (*parser).binary, precTerm}
	rules[token.Plus] = parseRule{nil, (*parser).binary, precTerm}
	rules[token.Slash] = parseRule{nil, (*parser).binary, precFactor}
	rules[token.Star] = parseRule{nil, (*parser).binary, precFactor}
	rules[token.Mod] = parseRule{nil, (*parser).binary, precFactor}
	rules[token.StarStar] = parseRule{nil, (*parser).binary, precExponent}
	rules[token.Bang] = parseRule{(*parser).unary, nil, precNone}
	rules[token.BangEqual] = parseRule{nil, (*parser).binary, precEquality}
	rules[token.EqualEqual] = parseRule{nil, (*parser).binary, precEquality}
	rules[token.Greater] = parseRule{nil, (*parser).binary, precComparison}
	rules[token.GreaterEqual] = parseRule{nil, (*parser).binary, precComparison}
	rules[token.Less] = parseRule{nil, (*parser).binary, precComparison}
	rules[token.LessEqual] = parseRule{nil, (*parser).binary, precComparison}
	rules[token.Ident] = parseRule{(*parser).variable, nil, precNone}
	rules[token.Number] = parseRule{(*parser).numberLiteral, nil, precNone}
	rules[token.And] = parseRule{nil, (*parser).and, precAnd}
	rules[token.Or] = parseRule{nil, (*parser).or, precOr}
	rules[token.True] = parseRule{(*parser).literal, nil, precNone}
	rules[token.False] = parseRule{(*parser).literal, nil, precNone}
}

func (p *parser) expression() {
	p.parsePrecedence(precAssignment)
}

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := rules[p.previous.Kind].prefix
	if prefix == nil {
		p.error("Expect expression")
		return
	}
	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= rules[p.current.Kind].precedence {
		p.advance()
		rules[p.previous.Kind].infix(p, canAssign)
	}

	if canAssign && (p.check(token.Equal) || isCompoundAssign(p.current.Kind)) {
		p.advance()
		p.error("Invalid assignment target")
	}
}

func (p *parser) numberLiteral(bool) {
	d, err := number.Parse(p.previous.Lexeme)
	if err != nil {
		p.error("Invalid number literal")
		return
	}
	p.emitConst(d)
}

func (p *parser) literal(bool) {
	switch p.previous.Kind {
	case token.True:
		p.emitByte(OP_TRUE)
	case token.False:
		p.emitByte(OP_FALSE)
	}
}

func (p *parser) grouping(bool) {
	p.expression()
	p.consume(token.RParen, "Expect ')' after expression")
}

func (p *parser) unary(bool) {
	op := p.previous.Kind
	p.parsePrecedence(precUnary)
	switch op {
	case token.Minus:
		p.emitByte(OP_NEGATE)
	case token.Bang:
		p.emitByte(OP_NOT)
	default:
		panic("unreachable unary operator " + op.String())
	}
}

func (p *parser) binary(bool) {
	op := p.previous.Kind
	rule := rules[op]
	if op == token.StarStar {
		p.parsePrecedence(precExponent)
	} else {
		p.parsePrecedence(rule.precedence + 1)
	}

	switch op {
	case token.Plus:
		p.emitByte(OP_ADD)
	case token.Minus:
		p.emitByte(OP_SUBTRACT)
	case token.Star:
		p.emitByte(OP_MULTIPLY)
	case token.Slash:
		p.emitByte(OP_DIVIDE)
	case token.StarStar:
		p.emitByte(OP_EXP)
	case token.Mod:
		p.emitByte(OP_MODULO)
	case token.EqualEqual:
		p.emitByte(OP_EQUAL)
	case token.BangEqual:
		p.emitBytes(OP_EQUAL, OP_NOT)
	case token.Greater:
		p.emitByte(OP_GREATER)
	case token.GreaterEqual:
		p.emitBytes(OP_LESS, OP_NOT)
	case token.Less:
		p.emitByte(OP_LESS)
	case token.LessEqual:
		p.emitBytes(OP_GREATER, OP_NOT)
	}
}

func (p *parser) and(bool) {
	endJump := p.emitJump(OP_JUMP_IF_FALSE)
	p.emitByte(OP_POP)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *parser) or(bool) {
	elseJump := p.emitJump(OP_JUMP_IF_FALSE)
	endJump := p.emitJump(OP_JUMP)
	p.patchJump(elseJump)
	p.emitByte(OP_POP)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *parser) call(bool) {
	argc := p.argumentList()
	p.emitBytes(OP_CALL, byte(argc))
}

func (p *parser) argumentList() int {
	argc := 0
	if !p.check(token.RParen) {
		for {
			p.expression()
			if argc == maxArgs {
				p.error("Can't have more than 255 arguments")
			}
			argc++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RParen, "Expect ')' after arguments")
	return argc
}

func (p *parser) variable(canAssign bool) {
	p.namedVariable(p.previous.Lexeme, canAssign)
}

func (p *parser) namedVariable(name string, canAssign bool) {
	var load, store, arg byte
	if slot := p.resolveLocal(name); slot != -1 {
		load, store, arg = OP_LOAD_LOCAL, OP_ASSIGN_LOCAL, byte(slot)
	} else {
		load, store, arg = OP_LOAD_GLOBAL, OP_ASSIGN_GLOBAL, p.makeConst(name)
	}

	switch {
	case canAssign && p.match(token.Equal):
		p.expression()
		p.emitBytes(store, arg)
	case canAssign && isCompoundAssign(p.current.Kind):
		p.advance()
		op := compoundOp(p.previous.Kind)
		p.emitBytes(load, arg)
		p.expression()
		p.emitByte(op)
		p.emitBytes(store, arg)
	default:
		p.emitBytes(load, arg)
	}
}

func isCompoundAssign(kind token.Kind) bool {
	switch kind {
	case token.PlusEqual, token.MinusEqual, token.StarEqual, token.SlashEqual, token.StarStarEqual:
		return true
	}
	return false
}

func compoundOp(kind token.Kind) byte {
	switch kind {
	case token.PlusEqual:
		return OP_ADD
	case token.MinusEqual:
		return OP_SUBTRACT
	case token.StarEqual:
		return OP_MULTIPLY
	case token.SlashEqual:
		return OP_DIVIDE
	default:
		return OP_EXP
	}
}
