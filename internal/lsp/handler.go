package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"vecsplit/internal/config"
	"vecsplit/internal/ir"
)

var log = commonlog.GetLogger("vecsplit.lsp")

// Semantic token types advertised to the client, in legend order.
var SemanticTokenTypes = []string{
	"namespace",
	"type",
	"function",
	"variable",
	"parameter",
	"property",
	"keyword",
	"number",
	"comment",
}

// Define the set of supported semantic token modifiers
var SemanticTokenModifiers = []string{
	"declaration",
	"definition",
	"readonly",
}

// document is the last analysis of an open file. program is nil when the
// file does not parse.
type document struct {
	text    string
	program *ir.Program
}

// VecsplitHandler implements the LSP server handlers for the textual IR
type VecsplitHandler struct {
	mu     sync.RWMutex
	docs   map[string]*document
	config *config.Config
}

// NewVecsplitHandler creates a handler using cfg until the client reports a
// workspace root with its own configuration file
func NewVecsplitHandler(cfg *config.Config) *VecsplitHandler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &VecsplitHandler{
		docs:   make(map[string]*document),
		config: cfg,
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *VecsplitHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")

	if params.RootURI != nil {
		if root, err := uriToPath(*params.RootURI); err == nil {
			cfg, err := config.Load(filepath.Join(root, config.FileName))
			if err != nil {
				log.Warningf("ignoring workspace configuration: %s", err)
			} else {
				h.mu.Lock()
				h.config = cfg
				h.mu.Unlock()
			}
		}
	}

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			HoverProvider: true,
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true),
			},
		},
	}, nil
}

func (h *VecsplitHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Info("initialized")
	return nil
}

func (h *VecsplitHandler) Shutdown(ctx *glsp.Context) error {
	log.Info("shutdown")
	return nil
}

func (h *VecsplitHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor
func (h *VecsplitHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Debugf("opened %s", params.TextDocument.URI)
	return h.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
}

// TextDocumentDidChange handles file change notifications. The server asks
// for full synchronization, so the last change carries the whole text.
func (h *VecsplitHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Debugf("changed %s", params.TextDocument.URI)

	var text string
	var found bool
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text, found = c.Text, true
		case protocol.TextDocumentContentChangeEvent:
			text, found = c.Text, true
		}
	}
	if !found {
		return nil
	}
	return h.update(ctx, params.TextDocument.URI, text)
}

func (h *VecsplitHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Debugf("closed %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.docs, path)
	return nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the entire document
func (h *VecsplitHandler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	doc, err := h.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	tokens := collectSemanticTokens(doc.text)

	var data []uint32
	var prevLine, prevStart uint32

	// Encode tokens into LSP wire format (using delta-line, delta-start compression)
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}

		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))

		prevLine = token.Line
		prevStart = token.StartChar
	}

	return &protocol.SemanticTokens{Data: data}, nil
}

func (h *VecsplitHandler) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) error {
	path, err := uriToPath(uri)
	if err != nil {
		return err
	}

	h.mu.RLock()
	cfg := h.config
	h.mu.RUnlock()

	program, diagnostics := analyze(path, text, cfg)

	h.mu.Lock()
	h.docs[path] = &document{text: text, program: program}
	h.mu.Unlock()

	sendDiagnosticNotification(ctx, uri, diagnostics)
	return nil
}

func (h *VecsplitHandler) document(uri protocol.DocumentUri) (*document, error) {
	path, err := uriToPath(uri)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[path]
	if !ok {
		return nil, errors.Errorf("document %s is not open", uri)
	}
	return doc, nil
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI %s", rawURI)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) to get C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	if diagnostics == nil {
		// An empty list clears what the client showed before.
		diagnostics = []protocol.Diagnostic{}
	}
	log.Debugf("sending %d diagnostics for %s", len(diagnostics), uri)

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
