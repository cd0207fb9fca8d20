package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"trellis/internal/config"
	"trellis/internal/project"
	"trellis/internal/provider"
	"trellis/internal/store"
	"trellis/internal/workspace"
)

// runCheck indexes dir and prints every unresolved reference as
// path:line:col: warning: message. It fails with status 1 if there is any.
func runCheck(w io.Writer, dir, configPath string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if cfg, err = config.LoadFromJSON(f); err != nil {
			return err
		}
	}

	db, err := store.Open("")
	if err != nil {
		return err
	}
	p := project.New(workspace.OS{}, db, project.Options{})
	defer p.Close()

	snap := config.NewSnapshot(root, cfg, config.DiscoverManifest(root))
	p.Configure(context.Background(), snap)

	unresolved := 0
	for _, path := range p.Files() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", display(dir, root, path), err)
			continue
		}
		for _, d := range provider.Validate(path, string(data), p) {
			fmt.Fprintf(w, "%s:%d:%d: warning: %s\n",
				display(dir, root, path), d.Range.Start.Line+1, d.Range.Start.Character+1, d.Message)
			unresolved++
		}
	}
	p.Wait()

	if unresolved > 0 {
		fmt.Fprintf(w, "%d unresolved references in %d templates\n", unresolved, len(p.Files()))
		return exitError(1)
	}
	return nil
}

// display shows path the way the user spelled dir.
func display(dir, root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.Join(dir, rel)
}
