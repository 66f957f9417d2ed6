package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xfidelity/xfidelity/internal/almanac"
)

func TestNewPluginHasNameAndVersion(t *testing.T) {
	p := New()
	if p.Name() != Name {
		t.Fatalf("expected name %q, got %q", Name, p.Name())
	}
	if p.Version() != Version {
		t.Fatalf("expected version %q, got %q", Version, p.Version())
	}
}

func TestInitWithoutCatalogPathLeavesEmptyEntries(t *testing.T) {
	p := New()
	if err := p.Init(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInitLoadsYAMLCatalog(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	yamlContent := "patterns:\n  - name: test-files\n    glob: \"*_test.go\"\n    description: Go test files\n"
	if err := os.WriteFile(catalogPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	p := New()
	if err := p.Init(context.Background(), map[string]any{"catalogPath": catalogPath}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	impl := p.(*Plugin)
	alm := almanac.New(map[string]any{"fileName": "foo_test.go"}, nil)
	facts := impl.Facts()
	if len(facts) != 1 || facts[0].Name != "filePattern" {
		t.Fatalf("expected a single 'filePattern' fact, got %+v", facts)
	}
	v, err := facts[0].Fn(context.Background(), nil, alm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["name"] != "test-files" {
		t.Fatalf("expected matched entry 'test-files', got %v", v)
	}
}

func TestInitRejectsUnreadableCatalogPath(t *testing.T) {
	p := New()
	if err := p.Init(context.Background(), map[string]any{"catalogPath": "/nonexistent/catalog.yaml"}); err == nil {
		t.Fatal("expected an error for an unreadable catalog path")
	}
}

func TestFilePatternFactNoMatchReturnsNil(t *testing.T) {
	p := New().(*Plugin)
	_ = p.Init(context.Background(), nil)
	alm := almanac.New(map[string]any{"fileName": "whatever.go"}, nil)

	v, err := p.filePatternFact(context.Background(), nil, alm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for no catalog entries, got %v", v)
	}
}

func TestMatchesGlob(t *testing.T) {
	if !matchesGlob("index.test.js", "*.test.js") {
		t.Fatal("expected glob match")
	}
	if matchesGlob("index.js", "*.test.js") {
		t.Fatal("expected no glob match")
	}
	if matchesGlob(42, "*.js") {
		t.Fatal("expected non-string value to never match")
	}
}

func TestSemverLessThanAgainstVersion(t *testing.T) {
	if !semverLessThan("1.2.0", "1.3.0") {
		t.Fatal("expected 1.2.0 < 1.3.0")
	}
	if semverLessThan("1.3.0", "1.2.0") {
		t.Fatal("expected 1.3.0 to not be less than 1.2.0")
	}
}

func TestSemverLessThanAgainstRange(t *testing.T) {
	// ">=1.0.0" as expected: result is the negation of satisfying the range.
	if semverLessThan("2.0.0", ">=1.0.0") {
		t.Fatal("expected a version satisfying the range to report false")
	}
	if !semverLessThan("0.5.0", ">=1.0.0") {
		t.Fatal("expected a version below the range's lower bound to report true")
	}
}

func TestSemverLessThanInvalidVersionIsFalse(t *testing.T) {
	if semverLessThan("not-a-version", "1.0.0") {
		t.Fatal("expected an unparsable version to report false")
	}
}
