package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/lexer"
	"github.com/rthome/SpeedCalc/internal/runtime"
	"github.com/rthome/SpeedCalc/internal/token"
	"github.com/rthome/SpeedCalc/internal/vm"
)

const lspName = "speedcalc-lsp"

var lspLog = commonlog.GetLogger("speedcalc.lsp")

var keywordDocs = map[string]string{
	"and":      "`a and b` evaluates b only when a is truthy.",
	"break":    "`break;` leaves the innermost loop.",
	"continue": "`continue;` skips to the next iteration of the innermost loop.",
	"else":     "`if cond: stmt else: stmt`",
	"false":    "The boolean false. Uninitialized variables hold false.",
	"fn":       "`fn name(params) = expr;` or `fn name(params) { ... }` declares a function.",
	"for":      "`for init; cond; step: stmt` loops while cond is truthy.",
	"if":       "`if cond: stmt` runs stmt when cond is truthy.",
	"mod":      "`a mod b` is the remainder of a divided by b.",
	"or":       "`a or b` evaluates b only when a is falsey.",
	"print":    "`print expr;` writes the value of expr on its own line.",
	"return":   "`return expr;` leaves the current function with a value.",
	"true":     "The boolean true.",
	"var":      "`var name = expr;` declares a variable; without an initializer it holds false.",
	"while":    "`while cond: stmt` loops while cond is truthy.",
}

// LspServer provides editor diagnostics, completion and hover.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a language server. v supplies the globals offered for
// completion.
func NewLSP(v *vm.VM) *LspServer {
	s := &LspServer{
		worker:  NewWorker(v),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}
	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// RunStdio serves a single client over stdin and stdout.
func (s *LspServer) RunStdio() error {
	return s.server.RunStdio()
}

// RunTCP serves clients connecting to addr.
func (s *LspServer) RunTCP(addr string) error {
	lspLog.Noticef("language server listening on %s", addr)
	return s.server.RunTCP(addr)
}

// Stop releases the VM worker.
func (s *LspServer) Stop() {
	s.worker.Stop()
}

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	uri := params.TextDocument.URI
	whole, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.docs[string(uri)] = whole.Text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, whole.Text)
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)

	globals, err := s.worker.Do(func(v *vm.VM) any {
		return v.GlobalNames()
	})
	if err != nil {
		return nil, err
	}
	return complete(prefix, globals.([]string), declaredNames(text)), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(word, text), nil
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: documentDiagnostics(text),
	})
}

// documentDiagnostics compiles text and converts every compile error into a
// diagnostic spanning its line.
func documentDiagnostics(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	_, err := compiler.Compile(text)
	if err == nil {
		return diagnostics
	}
	cerr, ok := err.(*compiler.Error)
	if !ok {
		return diagnostics
	}

	lines := strings.Split(text, "\n")
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, d := range cerr.Diagnostics() {
		line := d.Line - 1
		if line < 0 {
			line = 0
		}
		end := 0
		if line < len(lines) {
			end = len(lines[line])
		}
		msg := d.Message
		if d.Where != "" {
			msg = d.Where + ": " + d.Message
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
				End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
			},
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}
	return diagnostics
}

// declaredNames lists the names introduced by fn and var declarations.
func declaredNames(text string) []string {
	lex := lexer.New(text)
	var names []string
	prev := token.Token{Kind: token.EOF}
	for {
		tok := lex.NextToken()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind == token.Ident && (prev.Kind == token.Fn || prev.Kind == token.Var) {
			names = append(names, tok.Lexeme)
		}
		prev = tok
	}
	return names
}

func complete(prefix string, globals, declared []string) []protocol.CompletionItem {
	seen := map[string]bool{}
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:  label,
			Kind:   &kind,
			Detail: &detail,
		})
	}

	keywords := make([]string, 0, len(keywordDocs))
	for kw := range keywordDocs {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, spec := range runtime.All() {
		add(spec.Name, protocol.CompletionItemKindFunction, fmt.Sprintf("native (%d args)", spec.Arity))
	}
	for _, name := range globals {
		add(name, protocol.CompletionItemKindVariable, "global")
	}
	for _, name := range declared {
		add(name, protocol.CompletionItemKindVariable, "declared")
	}
	return items
}

func hover(word, text string) *protocol.Hover {
	var value string
	if doc, ok := keywordDocs[word]; ok {
		value = fmt.Sprintf("**%s** (keyword)\n\n%s", word, doc)
	} else if spec, ok := runtime.LookupByName(word); ok {
		value = fmt.Sprintf("**%s** (native, %d args)\n\n%s", spec.Name, spec.Arity, spec.Doc)
	} else if sig := functionSignature(word, text); sig != "" {
		value = fmt.Sprintf("```\n%s\n```", sig)
	} else {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// functionSignature finds "fn name(params)" in text.
func functionSignature(name, text string) string {
	lex := lexer.New(text)
	var (
		sig     strings.Builder
		prev    token.Token
		capture bool
	)
	for {
		tok := lex.NextToken()
		if tok.Kind == token.EOF || tok.Kind == token.Error {
			return ""
		}
		switch {
		case !capture && prev.Kind == token.Fn && tok.Kind == token.Ident && tok.Lexeme == name:
			capture = true
			sig.WriteString("fn " + name)
		case capture:
			switch tok.Kind {
			case token.Comma:
				sig.WriteString(", ")
			default:
				sig.WriteString(tok.Lexeme)
			}
			if tok.Kind == token.RParen {
				return sig.String()
			}
		}
		prev = tok
	}
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	start, end := col, col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
