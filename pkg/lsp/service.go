// Package lsp is the editor-facing facade: it routes LSP requests to the
// query engine, keeps open-document state, negotiates client capabilities,
// and publishes diagnostics and indexing progress.
package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
	"github.com/ganezdragon/perl-language-server/pkg/query"
)

const serverName = "perl-language-server"

// Method names sent server -> client.
const (
	methodPublishDiagnostics     = "textDocument/publishDiagnostics"
	methodWorkspaceConfiguration = "workspace/configuration"
	methodWorkDoneProgressCreate = "window/workDoneProgress/create"
	methodProgress               = "$/progress"
)

// clientFlags records the negotiated client capabilities the server
// branches on.
type clientFlags struct {
	configuration      bool
	workspaceFolders   bool
	relatedInformation bool
}

// Service wires the workspace index and query engine to the protocol.
type Service struct {
	handler protocol.Handler
	log     *slog.Logger

	host  *parser.Host
	store *index.Store
	docs  *documentStore

	caps    clientFlags
	folders []string
	budget  *analyzer.ProblemBudget
	watch   bool

	settingsMu      sync.Mutex
	settingsByURI   map[string]model.Settings
	sessionSettings model.Settings

	watchCancel context.CancelFunc
}

// Option configures the service.
type Option func(*Service)

// WithWatcher enables the fsnotify workspace watcher, keeping the index
// fresh for edits that never pass through the editor.
func WithWatcher() Option {
	return func(s *Service) { s.watch = true }
}

func NewService(log *slog.Logger, opts ...Option) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	host, err := parser.NewHost()
	if err != nil {
		return nil, err
	}
	s := &Service{
		log:             log,
		host:            host,
		store:           index.NewStore(host, log),
		docs:            newDocumentStore(),
		settingsByURI:   make(map[string]model.Settings),
		sessionSettings: model.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = protocol.Handler{
		Initialize:                      s.initialize,
		Initialized:                     s.initialized,
		Shutdown:                        s.shutdown,
		SetTrace:                        s.setTrace,
		TextDocumentDidOpen:             s.didOpen,
		TextDocumentDidChange:           s.didChange,
		TextDocumentDidClose:            s.didClose,
		TextDocumentDefinition:          s.definition,
		TextDocumentReferences:          s.references,
		TextDocumentDocumentHighlight:   s.documentHighlight,
		TextDocumentHover:               s.hover,
		TextDocumentDocumentSymbol:      s.documentSymbol,
		TextDocumentRename:              s.rename,
		TextDocumentPrepareRename:       s.prepareRename,
		TextDocumentCompletion:          s.completion,
		CompletionItemResolve:           s.completionResolve,
		WorkspaceSymbol:                 s.workspaceSymbol,
		WorkspaceDidChangeConfiguration: s.didChangeConfiguration,
		WorkspaceDidChangeWatchedFiles:  s.didChangeWatchedFiles,
	}
	return s, nil
}

// Store exposes the workspace index, mainly for tests.
func (s *Service) Store() *index.Store {
	return s.store
}

// RunStdio serves the LSP connection over stdin/stdout until the client
// disconnects.
func (s *Service) RunStdio() error {
	srv := glspserver.NewServer(&s.handler, serverName, false)
	return srv.RunStdio()
}

func (s *Service) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.negotiate(params)
	s.folders = workspaceFolders(params)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"$", "@", "%", ".", ":", "::"},
		ResolveProvider:   &protocol.True,
	}
	capabilities.DefinitionProvider = true
	capabilities.HoverProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentHighlightProvider = true
	capabilities.DocumentSymbolProvider = true
	capabilities.WorkspaceSymbolProvider = true
	capabilities.RenameProvider = protocol.RenameOptions{PrepareProvider: &protocol.True}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name: serverName,
		},
	}, nil
}

func (s *Service) negotiate(params *protocol.InitializeParams) {
	workspace := params.Capabilities.Workspace
	if workspace != nil {
		if workspace.Configuration != nil {
			s.caps.configuration = *workspace.Configuration
		}
		if workspace.WorkspaceFolders != nil {
			s.caps.workspaceFolders = *workspace.WorkspaceFolders
		}
	}
	textDocument := params.Capabilities.TextDocument
	if textDocument != nil && textDocument.PublishDiagnostics != nil && textDocument.PublishDiagnostics.RelatedInformation != nil {
		s.caps.relatedInformation = *textDocument.PublishDiagnostics.RelatedInformation
	}
}

func workspaceFolders(params *protocol.InitializeParams) []string {
	var folders []string
	for _, folder := range params.WorkspaceFolders {
		folders = append(folders, index.URIToPath(string(folder.URI)))
	}
	if len(folders) == 0 && params.RootURI != nil {
		folders = append(folders, index.URIToPath(string(*params.RootURI)))
	}
	if len(folders) == 0 && params.RootPath != nil {
		folders = append(folders, *params.RootPath)
	}
	return folders
}

func (s *Service) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	go s.scanWorkspace(ctx)
	if s.watch {
		s.startWatcher()
	}
	return nil
}

func (s *Service) shutdown(ctx *glsp.Context) error {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Service) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Service) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	content := []byte(params.TextDocument.Text)
	s.docs.set(uri, content)
	s.analyzeAndPublish(ctx, uri, content)
	return nil
}

func (s *Service) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	content, _ := s.docs.get(uri)
	content = applyChanges(content, params.ContentChanges)
	s.docs.set(uri, content)
	s.analyzeAndPublish(ctx, uri, content)
	return nil
}

func (s *Service) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	s.docs.delete(uri)
	s.store.Close(uri)
	ctx.Notify(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// analyzeAndPublish runs an editor-driven analysis, which always retains
// the tree, then publishes the file's diagnostics.
func (s *Service) analyzeAndPublish(ctx *glsp.Context, uri string, content []byte) {
	settings := s.settingsFor(ctx, uri)
	budget := analyzer.NewProblemBudget(settings.MaxNumberOfProblems)
	diags, err := s.store.Analyze(context.Background(), uri, content, settings, model.OnFileOpen, true, budget)
	if err != nil {
		s.log.Warn("analysis failed", "uri", uri, "err", err)
		return
	}
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	ctx.Notify(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: diags,
	})
}

func (s *Service) definition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := string(params.TextDocument.URI)
	locations, err := query.Definition(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position))
	if err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *Service) references(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := string(params.TextDocument.URI)
	return query.References(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position), false)
}

func (s *Service) documentHighlight(ctx *glsp.Context, params *protocol.DocumentHighlightParams) ([]protocol.DocumentHighlight, error) {
	uri := string(params.TextDocument.URI)
	return query.DocumentHighlight(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position))
}

func (s *Service) hover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := string(params.TextDocument.URI)
	return query.Hover(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position))
}

func (s *Service) documentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	return query.DocumentSymbols(s.store, string(params.TextDocument.URI)), nil
}

func (s *Service) rename(ctx *glsp.Context, params *protocol.RenameParams) (*protocol.WorkspaceEdit, error) {
	uri := string(params.TextDocument.URI)
	edit, err := query.Rename(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position), params.NewName)
	if err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return edit, nil
}

func (s *Service) prepareRename(ctx *glsp.Context, params *protocol.PrepareRenameParams) (any, error) {
	uri := string(params.TextDocument.URI)
	result, err := query.PrepareRename(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position))
	if err != nil || result == nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) completion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := string(params.TextDocument.URI)
	trigger := ""
	if params.Context != nil && params.Context.TriggerCharacter != nil {
		trigger = *params.Context.TriggerCharacter
	}
	return query.Completion(context.Background(), s.store, uri, s.settingsFor(ctx, uri), toModelPosition(params.Position), trigger)
}

func (s *Service) completionResolve(ctx *glsp.Context, item *protocol.CompletionItem) (*protocol.CompletionItem, error) {
	return query.ResolveCompletion(context.Background(), s.store, s.sessionSettings, item)
}

func (s *Service) workspaceSymbol(ctx *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	return query.WorkspaceSymbols(s.store, params.Query), nil
}

func (s *Service) didChangeConfiguration(ctx *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	if !s.caps.configuration {
		return nil
	}
	s.settingsMu.Lock()
	s.settingsByURI = make(map[string]model.Settings)
	s.settingsMu.Unlock()
	return nil
}

func (s *Service) didChangeWatchedFiles(ctx *glsp.Context, params *protocol.DidChangeWatchedFilesParams) error {
	for _, change := range params.Changes {
		uri := string(change.URI)
		if change.Type == protocol.FileChangeTypeDeleted {
			s.store.Close(uri)
			continue
		}
		content, err := index.ReadURI(uri)
		if err != nil {
			s.log.Warn("watched file unreadable", "uri", uri, "err", err)
			continue
		}
		settings := s.settingsFor(ctx, uri)
		budget := analyzer.NewProblemBudget(settings.MaxNumberOfProblems)
		diags, err := s.store.Analyze(context.Background(), uri, content, settings, model.OnWorkspaceOpen, true, budget)
		if err != nil {
			s.log.Warn("analysis failed", "uri", uri, "err", err)
			continue
		}
		if diags == nil {
			diags = []protocol.Diagnostic{}
		}
		ctx.Notify(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         change.URI,
			Diagnostics: diags,
		})
	}
	return nil
}

func toModelPosition(pos protocol.Position) model.Position {
	return model.Position{Row: pos.Line, Column: pos.Character}
}
