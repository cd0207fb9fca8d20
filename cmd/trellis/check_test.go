package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kr.dev/diff"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunCheck(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "templates/components/button.njk", "")
	writeFile(t, root, "templates/pages/home.njk", "<main>\n  {% include \"button\" %}\n  {% include \"missing\" %}\n</main>\n")

	var out bytes.Buffer
	err := runCheck(&out, root, "")

	var exit exitError
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Fatalf("runCheck() = %v, want exit status 1", err)
	}
	want := filepath.Join(root, "templates", "pages", "home.njk") + ":3:15: warning: Cannot resolve template \"missing\"\n" +
		"1 unresolved references in 2 templates\n"
	diff.Test(t, t.Errorf, out.String(), want)
}

func TestRunCheckClean(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "views/components/button.njk", "")
	writeFile(t, root, "views/pages/home.njk", `{% include "button" %}`)
	cfg := filepath.Join(root, "trellis.jsonc")
	writeFile(t, root, "trellis.jsonc", `{
  // the templates live elsewhere here
  "templateRoots": ["views"],
}`)

	var out bytes.Buffer
	if err := runCheck(&out, root, cfg); err != nil {
		t.Fatalf("runCheck() = %v\n%s", err, out.String())
	}
	diff.Test(t, t.Errorf, out.String(), "")
}
