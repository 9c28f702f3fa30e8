package lsp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
)

const configurationSection = "perl"

// scanWorkspace runs the startup indexing protocol: load the persisted
// index, announce progress, analyze every workspace file, publish
// diagnostics while the problem budget lasts, and persist the result.
func (s *Service) scanWorkspace(ctx *glsp.Context) {
	settings := s.settingsFor(ctx, "")
	s.budget = analyzer.NewProblemBudget(settings.MaxNumberOfProblems)

	loaded := false
	for _, folder := range s.folders {
		if s.store.Load(folder) {
			loaded = true
		}
	}

	title := "(Please wait) Indexing"
	if loaded {
		title = "Re-indexing"
	}

	token := protocol.ProgressToken{Value: "perl-language-server/indexing"}
	var void any
	ctx.Call(methodWorkDoneProgressCreate, protocol.WorkDoneProgressCreateParams{Token: token}, &void)
	percentage := protocol.UInteger(0)
	ctx.Notify(methodProgress, protocol.ProgressParams{
		Token: token,
		Value: protocol.WorkDoneProgressBegin{Kind: "begin", Title: title, Percentage: &percentage},
	})

	report := func(percent int) {
		percentage := protocol.UInteger(percent)
		ctx.Notify(methodProgress, protocol.ProgressParams{
			Token: token,
			Value: protocol.WorkDoneProgressReport{Kind: "report", Percentage: &percentage},
		})
	}
	publish := func(result index.ScanResult) {
		diags := result.Diagnostics
		if diags == nil {
			diags = []protocol.Diagnostic{}
		}
		ctx.Notify(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         protocol.DocumentUri(result.URI),
			Diagnostics: diags,
		})
	}

	for _, folder := range s.folders {
		if err := s.store.ScanWorkspace(context.Background(), folder, settings, s.budget, publish, report); err != nil {
			s.log.Warn("workspace scan failed", "folder", folder, "err", err)
		}
	}

	ctx.Notify(methodProgress, protocol.ProgressParams{
		Token: token,
		Value: protocol.WorkDoneProgressEnd{Kind: "end"},
	})

	for _, folder := range s.folders {
		if err := s.store.Save(folder); err != nil {
			s.log.Warn("index save failed", "folder", folder, "err", err)
		}
	}
}

// startWatcher keeps the index fresh for files modified outside the
// editor. Watcher re-analysis updates the index only; it publishes no
// diagnostics.
func (s *Service) startWatcher() {
	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	for _, folder := range s.folders {
		watcher := index.NewWatcher(folder, 250*time.Millisecond, s.log, s.reanalyzePaths)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				s.log.Warn("watcher stopped", "folder", folder, "err", err)
			}
		}()
	}
}

func (s *Service) reanalyzePaths(paths []string) {
	settings := s.sessionSettings
	for _, path := range paths {
		uri := index.PathToURI(path)
		content, err := index.ReadURI(uri)
		if err != nil {
			s.store.Close(uri)
			continue
		}
		budget := analyzer.NewProblemBudget(settings.MaxNumberOfProblems)
		if _, err := s.store.Analyze(context.Background(), uri, content, settings, model.OnWorkspaceOpen, false, budget); err != nil {
			s.log.Warn("watched analysis failed", "uri", uri, "err", err)
		}
	}
}

// settingsFor resolves the document's configuration. Clients that support
// workspace/configuration are asked once per URI and cached until
// didChangeConfiguration; everyone else gets the session defaults.
func (s *Service) settingsFor(ctx *glsp.Context, uri string) model.Settings {
	if !s.caps.configuration {
		return s.sessionSettings
	}

	s.settingsMu.Lock()
	if cached, ok := s.settingsByURI[uri]; ok {
		s.settingsMu.Unlock()
		return cached
	}
	s.settingsMu.Unlock()

	section := configurationSection
	item := protocol.ConfigurationItem{Section: &section}
	if uri != "" {
		scope := protocol.DocumentUri(uri)
		item.ScopeURI = &scope
	}

	var raw []json.RawMessage
	settings := model.DefaultSettings()
	ctx.Call(methodWorkspaceConfiguration, protocol.ConfigurationParams{
		Items: []protocol.ConfigurationItem{item},
	}, &raw)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw[0], &settings); err != nil {
			settings = model.DefaultSettings()
		}
		if settings.MaxNumberOfProblems <= 0 {
			settings.MaxNumberOfProblems = model.DefaultSettings().MaxNumberOfProblems
		}
		if settings.Caching == "" {
			settings.Caching = model.CachingEager
		}
	}

	s.settingsMu.Lock()
	s.settingsByURI[uri] = settings
	s.settingsMu.Unlock()
	return settings
}
