package resolver_test

import (
	"os"
	"path/filepath"
	"testing"

	"kr.dev/diff"

	"trellis/internal/config"
	"trellis/internal/resolver"
	"trellis/internal/workspace"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// project lays out the web and mobile spaces used throughout these tests.
func project(t *testing.T, extra ...string) (string, *resolver.Resolver) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, append([]string{
		"templates/components/button.njk",
		"templates/pages/home.njk",
		"mobile-templates/components/button.njk",
		"mobile-templates/pages/home.njk",
	}, extra...)...)
	snap := config.NewSnapshot(root, config.Default(), config.Manifest{
		DefaultSpace: "web",
		Spaces: []config.Space{
			{Name: "web", TemplateRoot: "templates"},
			{Name: "mobile", TemplateRoot: "mobile-templates"},
		},
	})
	return root, resolver.New(snap, workspace.OS{})
}

func TestResolveScenarios(t *testing.T) {
	root, r := project(t)
	home := filepath.Join(root, "templates", "pages", "home.njk")

	got, ok := r.Resolve(home, "button")
	if !ok || got != filepath.Join(root, "templates", "components", "button.njk") {
		t.Fatalf("Resolve(button) = %q, %v", got, ok)
	}

	if got, ok := r.Resolve(home, "missing-file"); ok {
		t.Fatalf("missing-file resolved to %q", got)
	}
}

func TestResolveSpaceIsolation(t *testing.T) {
	root, r := project(t, "mobile-templates/elements/only-mobile.njk")
	home := filepath.Join(root, "templates", "pages", "home.njk")

	if got, ok := r.Resolve(home, "only-mobile"); ok {
		t.Fatalf("reference escaped its space: %q", got)
	}
	if got, ok := r.Resolve(home, "elements/only-mobile"); ok {
		t.Fatalf("reference escaped its space: %q", got)
	}

	// an explicit relative path may cross spaces
	got, ok := r.Resolve(home, "../../mobile-templates/elements/only-mobile")
	if want := filepath.Join(root, "mobile-templates", "elements", "only-mobile.njk"); !ok || got != want {
		t.Fatalf("relative cross-space = %q, %v, want %q", got, ok, want)
	}

	mobileHome := filepath.Join(root, "mobile-templates", "pages", "home.njk")
	got, ok = r.Resolve(mobileHome, "button")
	if want := filepath.Join(root, "mobile-templates", "components", "button.njk"); !ok || got != want {
		t.Fatalf("mobile button = %q, want %q", got, want)
	}
}

func TestResolveAbsolute(t *testing.T) {
	root, r := project(t, "templates/partials/nav.njk")
	home := filepath.Join(root, "templates", "pages", "home.njk")

	target := filepath.Join(root, "mobile-templates", "components", "button.njk")
	res, ok := r.Explain(home, filepath.ToSlash(target))
	if !ok || res.Path != target || res.Step != resolver.StepAbsolute {
		t.Fatalf("absolute = %+v, %v", res, ok)
	}

	// a leading slash that names no file is taken as root relative
	res, ok = r.Explain(home, "/partials/nav")
	if !ok || res.Path != filepath.Join(root, "templates", "partials", "nav.njk") || res.Step != resolver.StepRoot {
		t.Fatalf("root relative = %+v, %v", res, ok)
	}
}

func TestResolveExtensionOrder(t *testing.T) {
	root, r := project(t,
		"templates/components/card.html",
		"templates/components/card.nunjucks",
		"templates/components/card.njk",
		"templates/components/badge.html",
		"templates/components/badge.nunjucks",
	)
	home := filepath.Join(root, "templates", "pages", "home.njk")

	tests := []struct {
		raw  string
		want string
	}{
		{"card", "templates/components/card.njk"},
		{"badge", "templates/components/badge.nunjucks"},
		{"card.html", "templates/components/card.html"},
	}
	for _, tt := range tests {
		got, ok := r.Resolve(home, tt.raw)
		if !ok || got != filepath.Join(root, filepath.FromSlash(tt.want)) {
			t.Errorf("Resolve(%s) = %q, %v, want %s", tt.raw, got, ok, tt.want)
		}
	}
}

func TestResolveRelativeWins(t *testing.T) {
	root, r := project(t, "templates/pages/button.njk")
	home := filepath.Join(root, "templates", "pages", "home.njk")

	res, ok := r.Explain(home, "button")
	if !ok || res.Path != filepath.Join(root, "templates", "pages", "button.njk") || res.Step != resolver.StepRelative {
		t.Fatalf("Explain(button) = %+v, %v", res, ok)
	}
}

func TestResolveRootBeforeContentDir(t *testing.T) {
	root, r := project(t, "templates/button.njk", "templates/emails/welcome.njk")
	mail := filepath.Join(root, "templates", "emails", "welcome.njk")

	res, ok := r.Explain(mail, "button")
	if !ok || res.Step != resolver.StepRoot || res.Path != filepath.Join(root, "templates", "button.njk") {
		t.Fatalf("Explain(button) = %+v, %v", res, ok)
	}
}

func TestResolveSkipsIgnored(t *testing.T) {
	root, r := project(t,
		"templates/node_modules/widget.njk",
		"templates/components/node_modules/chip.njk",
	)
	home := filepath.Join(root, "templates", "pages", "home.njk")

	for _, raw := range []string{"node_modules/widget", "node_modules/chip"} {
		if res, ok := r.Explain(home, raw); ok {
			t.Errorf("Explain(%q) = %+v, want unresolved", raw, res)
		}
	}
}

func TestResolveRejects(t *testing.T) {
	root, r := project(t, "templates/components/{{ name }}.njk", "templates/components/dir/x.njk")
	home := filepath.Join(root, "templates", "pages", "home.njk")

	for _, raw := range []string{
		"",
		"   ",
		"{{ name }}",
		"components/{{ name }}",
		"{% if a %}",
		"components/",
		"components/dir",
		"components/dir/",
	} {
		if got, ok := r.Resolve(home, raw); ok {
			t.Errorf("Resolve(%q) = %q, want unresolved", raw, got)
		}
	}
}

func TestResolveBasenameFallback(t *testing.T) {
	root, r := project(t,
		"templates/components/forms/deep/input.njk",
		"templates/elements/forms/input.njk",
		"templates/pages/blog/input.html",
		"templates/components/node_modules/lib/input.njk",
	)
	home := filepath.Join(root, "templates", "pages", "home.njk")

	res, ok := r.Explain(home, "input")
	if !ok {
		t.Fatal("input unresolved")
	}
	want := resolver.Resolution{
		Path: filepath.Join(root, "templates", "elements", "forms", "input.njk"),
		Step: resolver.StepBasename,
		Root: filepath.Join(root, "templates"),
		Alternatives: []string{
			filepath.Join(root, "templates", "components", "forms", "deep", "input.njk"),
			filepath.Join(root, "templates", "pages", "blog", "input.html"),
		},
	}
	diff.Test(t, t.Errorf, res, want)

	// a path is never searched by basename
	if got, ok := r.Resolve(home, "forms/deep/input"); ok {
		t.Errorf("forms/deep/input resolved to %q", got)
	}
}

func TestResolveNoSpaceSearchesAllRoots(t *testing.T) {
	root, r := project(t, "shared/partial.njk", "mobile-templates/elements/chip.njk")
	stray := filepath.Join(root, "shared", "partial.njk")

	got, ok := r.Resolve(stray, "chip")
	if want := filepath.Join(root, "mobile-templates", "elements", "chip.njk"); !ok || got != want {
		t.Fatalf("Resolve(chip) = %q, %v, want %q", got, ok, want)
	}
}

func TestResolveIdempotent(t *testing.T) {
	root, r := project(t)
	home := filepath.Join(root, "templates", "pages", "home.njk")
	for _, raw := range []string{"button", "missing-file", "./home"} {
		a, okA := r.Explain(home, raw)
		b, okB := r.Explain(home, raw)
		if okA != okB {
			t.Fatalf("%s: ok differs", raw)
		}
		diff.Test(t, t.Errorf, a, b)
	}
}

func TestCandidates(t *testing.T) {
	exts := []string{".njk", ".html"}
	diff.Test(t, t.Errorf, resolver.Candidates("button", exts), []string{"button.njk", "button.html"})
	diff.Test(t, t.Errorf, resolver.Candidates("button.njk", exts), []string{"button.njk"})
	diff.Test(t, t.Errorf, resolver.Candidates("a/b", exts),
		[]string{filepath.FromSlash("a/b.njk"), filepath.FromSlash("a/b.html")})
}

func TestRelative(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "w", "templates")
	if got := resolver.Relative(root, filepath.Join(root, "components", "a.njk")); got != "components/a.njk" {
		t.Errorf("Relative = %q", got)
	}
	if got := resolver.Relative(root, filepath.Join(string(filepath.Separator), "elsewhere", "a.njk")); got != "/elsewhere/a.njk" {
		t.Errorf("Relative outside = %q", got)
	}
}
