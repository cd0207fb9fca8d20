package server

import (
	"sync"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"trellis/internal/config"
	"trellis/internal/document"
	"trellis/internal/project"
)

var log = commonlog.GetLogger("trellis.server")

const name = "trellis"

// Commands understood by workspace/executeCommand.
const (
	CommandReindex = "trellis.reindex"
	CommandResolve = "trellis.resolve"
)

// completion is offered after these characters inside a reference
var triggerCharacters = []string{`"`, `'`, "/", ",", ":"}

// Options configure the language server.
type Options struct {
	Version string
	// NoCache keeps the link store in memory.
	NoCache bool
	// Watch follows the template roots with file system notifications in
	// addition to what the client reports.
	Watch bool
}

type Server struct {
	handler *protocol.Handler
	opts    Options
	docs    *document.Manager

	mu      sync.Mutex
	root    string
	cfg     config.Config
	project *project.Project
	notify  func(method string, params any)
}

func New(opts Options) *Server {
	s := &Server{
		opts: opts,
		docs: document.NewManager(),
		cfg:  config.Default(),
	}
	s.handler = &protocol.Handler{
		Initialize:                      s.initialize,
		Initialized:                     s.initialized,
		Shutdown:                        s.shutdown,
		SetTrace:                        s.setTrace,
		TextDocumentDidOpen:             s.textDocumentDidOpen,
		TextDocumentDidChange:           s.textDocumentDidChange,
		TextDocumentDidSave:             s.textDocumentDidSave,
		TextDocumentDidClose:            s.textDocumentDidClose,
		TextDocumentDefinition:          s.textDocumentDefinition,
		TextDocumentHover:               s.textDocumentHover,
		TextDocumentDocumentLink:        s.textDocumentDocumentLink,
		TextDocumentCompletion:          s.textDocumentCompletion,
		TextDocumentDocumentSymbol:      s.textDocumentDocumentSymbol,
		TextDocumentReferences:          s.textDocumentReferences,
		WorkspaceSymbol:                 s.workspaceSymbol,
		WorkspaceExecuteCommand:         s.workspaceExecuteCommand,
		WorkspaceDidChangeConfiguration: s.workspaceDidChangeConfiguration,
		WorkspaceDidChangeWatchedFiles:  s.workspaceDidChangeWatchedFiles,
	}
	return s
}

// NewServer wraps a new language server for stdio use.
func NewServer(opts Options) *glspserver.Server {
	return glspserver.NewServer(New(opts).handler, name, false)
}

// current returns the project, or nil before initialize.
func (s *Server) current() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

func (s *Server) publish(method string, params any) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(method, params)
	}
}
