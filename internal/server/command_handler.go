package server

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/config"
	"trellis/internal/document"
	"trellis/internal/workspace"
)

// ResolveResult answers the trellis.resolve command.
type ResolveResult struct {
	Resolved     bool     `json:"resolved"`
	URI          string   `json:"uri,omitempty"`
	Step         string   `json:"step,omitempty"`
	Description  string   `json:"description"`
	Alternatives []string `json:"alternatives,omitempty"`
}

func (s *Server) workspaceExecuteCommand(
	context *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	switch params.Command {
	case CommandReindex:
		log.Infof("reindex requested")
		s.reconfigure()
		return nil, nil
	case CommandResolve:
		return s.resolveCommand(params.Arguments)
	}
	return nil, fmt.Errorf("unknown command %q", params.Command)
}

// resolveCommand takes the URI of the referencing document and the target
// as written.
func (s *Server) resolveCommand(args []any) (*ResolveResult, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s expects a document URI and a target, got %d arguments", CommandResolve, len(args))
	}
	uri, ok1 := args[0].(string)
	raw, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%s expects string arguments", CommandResolve)
	}
	p := s.current()
	if p == nil {
		return nil, errNotReady
	}

	res, ok := p.Explain(document.URIToPath(uri), raw)
	if !ok {
		return &ResolveResult{Description: fmt.Sprintf("%q is unresolved", raw)}, nil
	}
	result := &ResolveResult{
		Resolved:    true,
		URI:         document.PathToURI(res.Path),
		Step:        string(res.Step),
		Description: res.Describe(),
	}
	for _, alt := range res.Alternatives {
		result.Alternatives = append(result.Alternatives, document.PathToURI(alt))
	}
	return result, nil
}

func (s *Server) workspaceDidChangeConfiguration(
	context *glsp.Context,
	params *protocol.DidChangeConfigurationParams,
) error {
	settings := params.Settings
	if m, ok := settings.(map[string]any); ok {
		if v, ok := m[name]; ok {
			settings = v
		}
	}
	cfg := config.LoadOrDefault(settings)
	log.Infof("configuration changed: %d template roots", len(cfg.TemplateRoots))

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.reconfigure()
	return nil
}

func (s *Server) workspaceDidChangeWatchedFiles(
	context *glsp.Context,
	params *protocol.DidChangeWatchedFilesParams,
) error {
	p := s.current()
	if p == nil {
		return nil
	}
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()

	manifestChanged := false
	for _, change := range params.Changes {
		path := document.URIToPath(change.URI)
		if config.IsManifest(root, path) {
			manifestChanged = true
			continue
		}
		var op workspace.Op
		switch change.Type {
		case protocol.FileChangeTypeCreated:
			op = workspace.Create
		case protocol.FileChangeTypeDeleted:
			op = workspace.Delete
		default:
			op = workspace.Change
		}
		p.Apply(workspace.Event{Path: path, Op: op})
	}

	if manifestChanged {
		log.Infof("spaces manifest changed")
		s.reconfigure()
		return nil
	}
	s.revalidate()
	return nil
}
