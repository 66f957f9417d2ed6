package xfconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/security"
	"github.com/xfidelity/xfidelity/internal/xferrors"
)

// maxLocalConfigFileSize bounds a single local archetype/rule document,
// adapted from pkg/catalog/plugin/file_config_store.go's maxConfigFileSize.
const maxLocalConfigFileSize = 1 << 20

// readLocalArchetype implements the local branch of §4.D initialize: reads
// {localConfigPath}/{archetype}.json through the path-traversal guard and
// a bounded file size, matching file_config_store.go's validateConfigPath
// and size-limit checks.
func readLocalArchetype(localConfigPath, archetype string) (*ArchetypeConfig, error) {
	path, err := security.CreateSecurePath(localConfigPath, archetype+".json")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &xferrors.NoConfigurationFoundError{Archetype: archetype, Source: "local"}
		}
		return nil, fmt.Errorf("stat local archetype %s: %w", path, err)
	}
	if info.Size() > maxLocalConfigFileSize {
		return nil, fmt.Errorf("local archetype file %s exceeds max size of %d bytes", path, maxLocalConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read local archetype %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, &xferrors.NoConfigurationFoundError{Archetype: archetype, Source: "local"}
	}

	var doc ArchetypeConfig
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &xferrors.NoConfigurationFoundError{Archetype: archetype, Source: "local"}
	}
	return &doc, nil
}

// readLocalRule loads a single named rule from {localConfigPath}/rules/{name}.json,
// used by the rule loader's local-precedence step (§4.D "Derive rules").
func readLocalRule(localConfigPath, name string) (*RuleConfig, error) {
	path, err := security.CreateSecurePath(localConfigPath, filepath.Join("rules", name+".json"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rule RuleConfig
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("parse local rule %s: %w", path, err)
	}
	return &rule, nil
}

// builtinArchetypeLocations are the bundled-fallback search locations for
// §4.D's builtin source, in priority order. BuiltinArchetypes is populated
// by the cmd/xfidelity entrypoint (or tests) with the embedded defaults;
// leaving it as an injectable map keeps xfconfig independent of any
// specific embed.FS layout.
var BuiltinArchetypes = map[string]ArchetypeConfig{}

// readBuiltinArchetype implements the builtin branch of §4.D initialize.
func readBuiltinArchetype(archetype string) (*ArchetypeConfig, error) {
	doc, ok := BuiltinArchetypes[archetype]
	if !ok {
		return nil, &xferrors.NoConfigurationFoundError{Archetype: archetype, Source: "builtin"}
	}
	return &doc, nil
}

// WriteLocalArchetype is a convenience used by tests and by `xfidelity init`
// style tooling to populate a local config directory; it reuses the same
// path guard as the read path.
func WriteLocalArchetype(localConfigPath string, doc ArchetypeConfig, logger *zap.Logger) error {
	path, err := security.CreateSecurePath(localConfigPath, doc.Name+".json")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create local config dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archetype: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp archetype file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename archetype file into place: %w", err)
	}
	return nil
}
