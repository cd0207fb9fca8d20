package server

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"trellis/internal/document"
	"trellis/internal/project"
	"trellis/internal/provider"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	doc := s.docs.Open(
		params.TextDocument.URI,
		params.TextDocument.Version,
		params.TextDocument.Text,
	)
	s.documentChanged(doc)
	return nil
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	doc, err := s.docs.Update(
		params.TextDocument.URI,
		params.TextDocument.Version,
		params.ContentChanges,
	)
	if err != nil {
		return fmt.Errorf("unexpected error during edit: %w", err)
	}
	s.documentChanged(doc)
	return nil
}

func (s *Server) textDocumentDidSave(
	context *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	doc, err := s.docs.Get(uri)
	if params.Text != nil {
		doc, err = s.docs.Replace(uri, *params.Text)
	}
	if err != nil {
		return err
	}
	s.documentChanged(doc)
	return nil
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	s.docs.Close(uri)
	publishDiagnostics(s, uri, []protocol.Diagnostic{})
	return nil
}

// documentChanged stores the links of an edited document and republishes
// its diagnostics.
func (s *Server) documentChanged(doc document.Document) {
	p := s.current()
	if p == nil {
		return
	}
	if err := p.UpdateDocument(doc.Path, doc.Text); err != nil {
		log.Warningf("storing links of %s: %v", doc.Path, err)
	}
	publishDiagnostics(s, doc.URI, provider.Validate(doc.Path, doc.Text, p))
}

// revalidate republishes the diagnostics of every open document.
func (s *Server) revalidate() {
	p := s.current()
	if p == nil {
		return
	}
	for _, doc := range s.docs.All() {
		publishDiagnostics(s, doc.URI, provider.Validate(doc.Path, doc.Text, p))
	}
}

func (s *Server) projectChanged(c project.Change) {
	log.Debugf("generation %d changed, %d templates reindexed", c.Generation, len(c.Paths))
	s.revalidate()
}

// publishDiagnostics always sends the list, an empty one included, so the
// client drops diagnostics that no longer apply.
func publishDiagnostics(
	s *Server,
	uri string,
	diagnostics []protocol.Diagnostic,
) {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	s.publish("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}
