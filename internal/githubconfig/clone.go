// Package githubconfig implements component L: making a Git-hosted
// archetype-config repository available on local disk for the config
// resolver's "local" source, when githubConfigLocation names a repository
// instead of a bare directory.
//
// Grounded on pkg/catalog/providers/git/provider.go's go-git clone/pull/
// HEAD-tracking shape, generalized from that provider's per-source temp
// directories to a stable, content-addressed cache directory shared across
// resolver initializations (and locked per-repo-hash instead of owned
// exclusively by one Provider instance).
package githubconfig

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/security"
	"github.com/xfidelity/xfidelity/internal/xferrors"
)

// CloneMetadata is the persisted `.git/xfi-metadata.json` document
// described in §6's filesystem layout.
type CloneMetadata struct {
	RepoURL     string    `json:"repoUrl"`
	Branch      string    `json:"branch"`
	ConfigPath  string    `json:"configPath"`
	OriginalURL string    `json:"originalUrl"`
	LastUpdate  time.Time `json:"lastUpdate"`
	ClonedAt    time.Time `json:"clonedAt"`
}

// RefreshEvent is emitted by Watch whenever a resync detects a commit
// change.
type RefreshEvent struct {
	Dir       string
	NewCommit string
	At        time.Time
}

// lockRegistry is the process-wide, per-repo-hash mutex map named in §5's
// shared-resource policy, so concurrent resolver initializations for the
// same archetype never clone/fetch the same directory twice.
var lockRegistry = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

func lockFor(hash string) *sync.Mutex {
	lockRegistry.mu.Lock()
	defer lockRegistry.mu.Unlock()
	l, ok := lockRegistry.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		lockRegistry.locks[hash] = l
	}
	return l
}

// Manager implements the clone subsystem over a configurable cache root
// (defaults to ~/.config/xfidelity/configs).
type Manager struct {
	CacheRoot string
	Allowlist security.DomainAllowlist
	Logger    *zap.Logger
}

// NewManager builds a Manager. An empty cacheRoot resolves to
// ~/.config/xfidelity/configs via os.UserHomeDir.
func NewManager(cacheRoot string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cacheRoot = filepath.Join(home, ".config", "xfidelity", "configs")
	}
	return &Manager{CacheRoot: cacheRoot, Logger: logger}, nil
}

func repoHash(repoURL, branch string) string {
	sum := md5.Sum([]byte(repoURL + "#" + branch))
	return hex.EncodeToString(sum[:])
}

// EnsureCloned implements §4.L EnsureCloned: computes the cache directory,
// clones it if absent, or re-fetches an existing clone when forceUpdate is
// set or updateFrequency has elapsed since the last update.
func (m *Manager) EnsureCloned(ctx context.Context, repoURL, branch string, updateFrequency time.Duration, forceUpdate bool) (string, CloneMetadata, error) {
	if err := security.ValidateURL(repoURL, m.Allowlist); err != nil {
		return "", CloneMetadata{}, err
	}
	if branch == "" {
		branch = "main"
	}

	hash := repoHash(repoURL, branch)
	lock := lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(m.CacheRoot, "github-"+hash)
	metaPath := filepath.Join(dir, ".git", "xfi-metadata.json")

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		meta, err := m.clone(ctx, dir, repoURL, branch)
		if err != nil {
			return "", CloneMetadata{}, err
		}
		return dir, meta, nil
	}

	meta, err := readMetadata(metaPath)
	if err != nil {
		meta = CloneMetadata{RepoURL: repoURL, Branch: branch, ConfigPath: dir, OriginalURL: repoURL}
	}

	stale := updateFrequency > 0 && time.Since(meta.LastUpdate) > updateFrequency
	if forceUpdate || stale {
		if _, _, err := m.Refresh(ctx, dir); err != nil {
			m.Logger.Warn("refresh failed, serving stale clone", zap.String("dir", dir), zap.Error(err))
		} else if updated, err := readMetadata(metaPath); err == nil {
			meta = updated
		}
	}
	return dir, meta, nil
}

func (m *Manager) clone(ctx context.Context, dir, repoURL, branch string) (CloneMetadata, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return CloneMetadata{}, fmt.Errorf("create cache root: %w", err)
	}

	m.Logger.Info("cloning archetype config repository", zap.String("repoUrl", repoURL), zap.String("branch", branch), zap.String("dir", dir))
	repo, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		os.RemoveAll(dir)
		return CloneMetadata{}, &xferrors.CloneFailedError{RepoURL: repoURL, Err: err}
	}

	now := time.Now()
	meta := CloneMetadata{RepoURL: repoURL, Branch: branch, ConfigPath: dir, OriginalURL: repoURL, LastUpdate: now, ClonedAt: now}
	if err := writeMetadata(filepath.Join(dir, ".git", "xfi-metadata.json"), meta); err != nil {
		m.Logger.Warn("failed to persist clone metadata", zap.Error(err))
	}
	_ = repo
	return meta, nil
}

// Refresh implements §4.L Refresh: opens the existing clone, pulls, detects
// NoErrAlreadyUpToDate, and diffs the HEAD commit before/after.
func (m *Manager) Refresh(ctx context.Context, dir string) (changed bool, newCommit string, err error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return false, "", fmt.Errorf("open clone at %s: %w", dir, err)
	}

	before, _ := headCommit(repo)

	w, err := repo.Worktree()
	if err != nil {
		return false, "", fmt.Errorf("get worktree: %w", err)
	}
	pullErr := w.PullContext(ctx, &gogit.PullOptions{RemoteName: "origin", SingleBranch: true})
	if pullErr != nil && pullErr != gogit.NoErrAlreadyUpToDate {
		return false, "", &xferrors.CloneFailedError{RepoURL: dir, Err: pullErr}
	}

	after, err := headCommit(repo)
	if err != nil {
		return false, "", fmt.Errorf("read HEAD after pull: %w", err)
	}

	metaPath := filepath.Join(dir, ".git", "xfi-metadata.json")
	meta, err := readMetadata(metaPath)
	if err != nil {
		meta = CloneMetadata{ConfigPath: dir}
	}
	meta.LastUpdate = time.Now()
	if err := writeMetadata(metaPath, meta); err != nil {
		m.Logger.Warn("failed to update clone metadata", zap.Error(err))
	}

	return before != after, after, nil
}

// Watch implements §4.L Watch: a ticker-driven background resync loop for
// long-lived hosts (mode: "server"), emitting a RefreshEvent on every
// commit change; unused in one-shot CLI mode.
func (m *Manager) Watch(ctx context.Context, dir string, interval time.Duration) <-chan RefreshEvent {
	out := make(chan RefreshEvent)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				changed, commit, err := m.Refresh(ctx, dir)
				if err != nil {
					m.Logger.Error("watch refresh failed", zap.String("dir", dir), zap.Error(err))
					continue
				}
				if !changed {
					continue
				}
				select {
				case out <- RefreshEvent{Dir: dir, NewCommit: commit, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func headCommit(repo *gogit.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

func readMetadata(path string) (CloneMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CloneMetadata{}, err
	}
	var meta CloneMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return CloneMetadata{}, err
	}
	return meta, nil
}

func writeMetadata(path string, meta CloneMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
