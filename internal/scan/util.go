package scan

import (
	"fmt"

	"github.com/xfidelity/xfidelity/internal/engine"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

// findRule looks up a rule by name within the engine's fixed rule set; it
// always succeeds because EvalResult.Name is only ever populated from a
// rule the same engine just evaluated.
func findRule(eng *engine.Engine, name string) xfconfig.RuleConfig {
	for _, r := range eng.Rules {
		if r.Name == name {
			return r
		}
	}
	return xfconfig.RuleConfig{Name: name}
}

func errString(r any) error {
	return fmt.Errorf("%v", r)
}
