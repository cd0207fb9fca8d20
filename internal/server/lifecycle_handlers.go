package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/config"
	"trellis/internal/document"
	"trellis/internal/project"
	"trellis/internal/store"
	"trellis/internal/workspace"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	// Config
	cfg, err := config.Load(params.InitializationOptions)
	if err != nil {
		log.Warningf("invalid initialization options, using defaults: %v", err)
		cfg = config.Default()
	}

	// Root
	root, err := rootPath(params)
	if err != nil {
		return nil, err
	}
	log.Infof("workspace root %s", root)

	// Link store
	db, err := s.openStore(root, cfg)
	if err != nil {
		log.Errorf("link store unavailable, falling back to memory: %v", err)
		if db, err = store.Open(""); err != nil {
			return nil, err
		}
	}

	p := project.New(workspace.OS{}, db, project.Options{Watch: s.opts.Watch})
	p.SetOverlay(func(path string) (string, bool) {
		doc, ok := s.docs.ByPath(path)
		return doc.Text, ok
	})
	p.OnChange(s.projectChanged)

	s.mu.Lock()
	s.root = root
	s.cfg = cfg
	s.project = p
	s.notify = context.Notify
	s.mu.Unlock()

	s.reconfigure()

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: triggerCharacters,
	}
	capabilities.DocumentLinkProvider = &protocol.DocumentLinkOptions{}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandReindex, CommandResolve},
	}

	version := s.opts.Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    name,
			Version: &version,
		},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Infof("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	s.mu.Lock()
	p := s.project
	s.project = nil
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

func (s *Server) setTrace(
	context *glsp.Context,
	params *protocol.SetTraceParams,
) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// reconfigure builds a snapshot from the current settings and the spaces
// manifest on disk, and starts a new generation with it.
func (s *Server) reconfigure() {
	s.mu.Lock()
	root, cfg, p := s.root, s.cfg, s.project
	s.mu.Unlock()
	if p == nil {
		return
	}

	snap := config.NewSnapshot(root, cfg, config.DiscoverManifest(root))
	p.Configure(context.Background(), snap)
	s.revalidate()
}

// openStore opens the link store kept for root and cfg, or an in-memory
// one when caching is off.
func (s *Server) openStore(root string, cfg config.Config) (*store.SQLiteDB, error) {
	if s.opts.NoCache {
		return store.Open("")
	}

	stateBaseDir, err := getXDGStateHome(name)
	if err != nil {
		return nil, err
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(configJSON)
	cacheDir := filepath.Join(stateBaseDir, url.PathEscape(root), hex.EncodeToString(hash[:]))
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return store.Open(filepath.Join(cacheDir, "links.db"))
}

// rootPath picks the workspace root announced by the client.
func rootPath(params *protocol.InitializeParams) (string, error) {
	switch {
	case params.RootURI != nil && *params.RootURI != "":
		return document.URIToPath(*params.RootURI), nil
	case params.RootPath != nil && *params.RootPath != "":
		return filepath.Clean(*params.RootPath), nil
	case len(params.WorkspaceFolders) > 0:
		return document.URIToPath(params.WorkspaceFolders[0].URI), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("no workspace root: %w", err)
	}
	return wd, nil
}

func getXDGStateHome(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)
	if err := os.MkdirAll(appStateDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return appStateDir, nil
}
