package xfconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/telemetry"
)

// exemptionFile is the shape of both the legacy single-file form and each
// entry in the directory form.
type exemptionFile struct {
	Exemptions []Exemption `json:"exemptions"`
}

// LoadExemptions implements §4.B loadExemptions: combines the legacy
// single-file form with the directory form, de-duplicating by
// (repoUrl, rule) and keeping the latest expirationDate. Any single source
// that is missing or malformed is skipped, not fatal — the same
// skip-and-continue policy the selector-matching governance code uses when
// an individual policy file entry doesn't parse.
func LoadExemptions(localConfigPath, archetype string, logger *zap.Logger) []Exemption {
	if logger == nil {
		logger = zap.NewNop()
	}
	if localConfigPath == "" {
		return nil
	}

	byKey := make(map[string]Exemption)

	legacyPath := filepath.Join(localConfigPath, archetype+"-exemptions.json")
	if exs, err := loadExemptionFile(legacyPath); err != nil {
		logger.Warn("failed to load legacy exemptions file", zap.String("path", legacyPath), zap.Error(err))
	} else {
		mergeExemptions(byKey, exs)
	}

	dirPath := filepath.Join(localConfigPath, archetype+"-exemptions")
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		logger.Warn("failed to read exemptions directory", zap.String("path", dirPath), zap.Error(err))
	} else {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			p := filepath.Join(dirPath, entry.Name())
			exs, err := loadExemptionFile(p)
			if err != nil {
				logger.Warn("skipping malformed exemptions file", zap.String("path", p), zap.Error(err))
				continue
			}
			mergeExemptions(byKey, exs)
		}
	}

	out := make([]Exemption, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	return out
}

func loadExemptionFile(path string) ([]Exemption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var f exemptionFile
	if err := json.Unmarshal(data, &f); err != nil {
		// Some files are a bare array rather than {"exemptions": [...]}.
		var bare []Exemption
		if err2 := json.Unmarshal(data, &bare); err2 != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return bare, nil
	}
	return f.Exemptions, nil
}

func exemptionKey(e Exemption) string {
	return e.RepoURL + "\x00" + e.Rule
}

func mergeExemptions(byKey map[string]Exemption, exs []Exemption) {
	for _, e := range exs {
		k := exemptionKey(e)
		existing, ok := byKey[k]
		if !ok || e.ExpirationDate.After(existing.ExpirationDate) {
			byKey[k] = e
		}
	}
}

// IsExemptInput is the argument bundle for IsExempt.
type IsExemptInput struct {
	RuleName   string
	RepoURL    string
	Exemptions []Exemption
	LogPrefix  string
	Now        time.Time
	Telemetry  *telemetry.Sink // optional
}

// IsExempt implements §4.B isExempt: true iff a matching, non-expired
// exemption exists for (repoUrl, rule) after GitHub-URL normalization. On
// match it emits an "exemptionAllowed" telemetry event.
func IsExempt(in IsExemptInput) bool {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	normalizedInput, err := NormalizeGitHubURL(in.RepoURL)
	if err != nil {
		normalizedInput = in.RepoURL
	}

	for _, e := range in.Exemptions {
		if e.Rule != in.RuleName {
			continue
		}
		normalizedExemption, err := NormalizeGitHubURL(e.RepoURL)
		if err != nil {
			normalizedExemption = e.RepoURL
		}
		if normalizedExemption != normalizedInput {
			continue
		}
		if e.ExpirationDate.After(now) {
			if in.Telemetry != nil {
				in.Telemetry.Emit(telemetry.Event{
					Type: "exemptionAllowed",
					Data: map[string]any{
						"repoUrl":        e.RepoURL,
						"rule":           e.Rule,
						"expirationDate": e.ExpirationDate,
						"reason":         e.Reason,
					},
				})
			}
			return true
		}
	}
	return false
}
