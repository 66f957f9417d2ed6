package githubconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewManagerDefaultsCacheRoot(t *testing.T) {
	m, err := NewManager("", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.CacheRoot == "" {
		t.Fatal("expected a non-empty default cache root")
	}
}

func TestNewManagerUsesExplicitCacheRoot(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.CacheRoot != dir {
		t.Fatalf("expected cache root %q, got %q", dir, m.CacheRoot)
	}
	if m.Logger == nil {
		t.Fatal("expected NewManager to default a nil logger to a no-op logger")
	}
}

func TestRepoHashIsStableAndDistinct(t *testing.T) {
	a := repoHash("https://github.com/org/repo.git", "main")
	b := repoHash("https://github.com/org/repo.git", "main")
	if a != b {
		t.Fatal("expected repoHash to be deterministic for identical inputs")
	}
	c := repoHash("https://github.com/org/repo.git", "develop")
	if a == c {
		t.Fatal("expected repoHash to differ across branches")
	}
}

func TestLockForReturnsSameMutexForSameHash(t *testing.T) {
	l1 := lockFor("abc")
	l2 := lockFor("abc")
	if l1 != l2 {
		t.Fatal("expected the same mutex instance for the same hash")
	}
	l3 := lockFor("def")
	if l1 == l3 {
		t.Fatal("expected a distinct mutex for a distinct hash")
	}
}

func TestEnsureClonedRejectsUnsafeURL(t *testing.T) {
	m, err := NewManager(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err = m.EnsureCloned(context.Background(), "http://example.com/org/repo.git", "main", time.Hour, false)
	if err == nil {
		t.Fatal("expected a non-HTTPS repo URL to be rejected before any clone attempt")
	}
}

func TestWriteAndReadMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xfi-metadata.json")
	meta := CloneMetadata{
		RepoURL:     "https://github.com/org/repo.git",
		Branch:      "main",
		ConfigPath:  dir,
		OriginalURL: "https://github.com/org/repo.git",
		LastUpdate:  time.Now().Truncate(time.Second),
		ClonedAt:    time.Now().Truncate(time.Second),
	}
	if err := writeMetadata(path, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := readMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RepoURL != meta.RepoURL || got.Branch != meta.Branch {
		t.Fatalf("expected round-tripped metadata to match, got %+v", got)
	}
}

func TestReadMetadataMissingFileErrors(t *testing.T) {
	if _, err := readMetadata(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error reading a missing metadata file")
	}
}

func TestReadMetadataMalformedJSONErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := readMetadata(path); err == nil {
		t.Fatal("expected an error reading malformed metadata JSON")
	}
}

func TestRefreshOpenFailsForNonRepoDir(t *testing.T) {
	m, err := NewManager(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dir := t.TempDir()
	if _, _, err := m.Refresh(context.Background(), dir); err == nil {
		t.Fatal("expected Refresh to fail opening a directory that isn't a git repo")
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	m, err := NewManager(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := m.Watch(ctx, t.TempDir(), time.Millisecond)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected no refresh events before the channel closes")
		}
	case <-time.After(time.Second):
		t.Fatal("expected Watch's channel to close promptly after context cancellation")
	}
}
