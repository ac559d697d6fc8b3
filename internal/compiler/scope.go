package compiler

// local is a named stack slot. depth is -1 between declaration and the end
// of its initializer.
type local struct {
	name  string
	depth int
}

// loopState records what break and continue need for the innermost loop.
type loopState struct {
	start      int
	scopeDepth int
	breaks     []int
}

func (p *parser) beginScope() {
	p.fc().scopeDepth++
}

func (p *parser) endScope() {
	fc := p.fc()
	fc.scopeDepth--
	n := 0
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		fc.locals = fc.locals[:len(fc.locals)-1]
		n++
	}
	p.emitPops(n)
}

func (p *parser) emitPops(n int) {
	switch {
	case n == 1:
		p.emitByte(OP_POP)
	case n > 1:
		p.emitBytes(OP_POPN, byte(n))
	}
}

func (p *parser) addLocal(name string) {
	fc := p.fc()
	if len(fc.locals) == maxLocals {
		p.error("Too many locals in function")
		return
	}
	fc.locals = append(fc.locals, local{name: name, depth: -1})
}

// declareVariable registers the previous identifier as a local when inside
// a scope. Globals are late bound and need no declaration.
func (p *parser) declareVariable() {
	fc := p.fc()
	if fc.scopeDepth == 0 {
		return
	}
	name := p.previous.Lexeme
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := fc.locals[i]
		if l.depth != -1 && l.depth < fc.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Already a variable with this name in this scope")
		}
	}
	p.addLocal(name)
}

func (p *parser) markInitialized() {
	fc := p.fc()
	if fc.scopeDepth == 0 {
		return
	}
	fc.locals[len(fc.locals)-1].depth = fc.scopeDepth
}

// resolveLocal returns the slot of name in the current function, or -1.
func (p *parser) resolveLocal(name string) int {
	fc := p.fc()
	for i := len(fc.locals) - 1; i > 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				p.error("Can't read local variable in its own initializer")
			}
			return i
		}
	}
	return -1
}

func (p *parser) pushLoop(start int) {
	fc := p.fc()
	fc.loops = append(fc.loops, &loopState{start: start, scopeDepth: fc.scopeDepth})
}

func (p *parser) popLoop() {
	fc := p.fc()
	loop := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]
	for _, pos := range loop.breaks {
		p.patchJump(pos)
	}
}

func (p *parser) currentLoop() *loopState {
	fc := p.fc()
	if len(fc.loops) == 0 {
		return nil
	}
	return fc.loops[len(fc.loops)-1]
}

// discardLoopLocals pops the locals declared inside the loop body without
// forgetting them at compile time.
func (p *parser) discardLoopLocals(loop *loopState) {
	fc := p.fc()
	n := 0
	for i := len(fc.locals) - 1; i > 0 && fc.locals[i].depth > loop.scopeDepth; i-- {
		n++
	}
	p.emitPops(n)
}
