package xfconfig

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

var archetypeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationLayer is one independently testable check in a
// MultiLayerValidator, adapted from
// pkg/catalog/plugin/validator.go's ValidationLayer: a Critical layer
// failing stops evaluation of subsequent layers, the same short-circuit
// idiom the rule engine uses for all/any condition trees.
type ValidationLayer struct {
	Name     string
	Critical bool
	Check    func(doc any) (bool, string)
}

// LayerResult records one layer's outcome.
type LayerResult struct {
	Name   string
	Passed bool
	Reason string
}

// ValidationResult is the outcome of running a MultiLayerValidator.
type ValidationResult struct {
	Valid  bool
	Layers []LayerResult
}

// MultiLayerValidator runs its layers in order, stopping at the first
// failing Critical layer.
type MultiLayerValidator struct {
	layers []ValidationLayer
	logger *zap.Logger
}

// NewMultiLayerValidator creates a validator with no layers yet.
func NewMultiLayerValidator(logger *zap.Logger) *MultiLayerValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiLayerValidator{logger: logger}
}

// AddLayer appends a validation layer.
func (v *MultiLayerValidator) AddLayer(l ValidationLayer) {
	v.layers = append(v.layers, l)
}

// Validate runs all layers against doc, stopping early on a critical
// failure.
func (v *MultiLayerValidator) Validate(doc any) *ValidationResult {
	result := &ValidationResult{Valid: true}
	for _, layer := range v.layers {
		ok, reason := layer.Check(doc)
		result.Layers = append(result.Layers, LayerResult{Name: layer.Name, Passed: ok, Reason: reason})
		if !ok {
			result.Valid = false
			v.logger.Warn("validation layer failed", zap.String("layer", layer.Name), zap.String("reason", reason))
			if layer.Critical {
				return result
			}
		}
	}
	return result
}

// ValidateArchetype implements §4.A validateArchetype(doc) -> bool.
func ValidateArchetype(doc *ArchetypeConfig, logger *zap.Logger) bool {
	v := NewMultiLayerValidator(logger)
	v.AddLayer(ValidationLayer{
		Name:     "name-pattern",
		Critical: true,
		Check: func(any) (bool, string) {
			if !archetypeNamePattern.MatchString(doc.Name) {
				return false, fmt.Sprintf("name %q does not match [A-Za-z0-9_-]+", doc.Name)
			}
			return true, ""
		},
	})
	v.AddLayer(ValidationLayer{
		Name:     "rules-non-empty",
		Critical: true,
		Check: func(any) (bool, string) {
			if len(doc.Rules) == 0 {
				return false, "rules list is empty"
			}
			return true, ""
		},
	})
	v.AddLayer(ValidationLayer{
		Name:     "pattern-lists-non-empty",
		Critical: false,
		Check: func(any) (bool, string) {
			if len(doc.Config.BlacklistPatterns) == 0 && len(doc.Config.WhitelistPatterns) == 0 {
				return false, "both blacklistPatterns and whitelistPatterns are empty"
			}
			return true, ""
		},
	})
	v.AddLayer(ValidationLayer{
		Name:     "semver-ranges",
		Critical: true,
		Check: func(any) (bool, string) {
			for dep, constraint := range doc.Config.MinimumDependencyVersions {
				if _, err := semver.NewConstraint(constraint); err != nil {
					return false, fmt.Sprintf("dependency %q has invalid semver range %q: %v", dep, constraint, err)
				}
			}
			return true, ""
		},
	})
	return v.Validate(doc).Valid
}

// ValidateRule implements §4.A validateRule(doc) -> bool.
func ValidateRule(doc *RuleConfig, logger *zap.Logger) bool {
	v := NewMultiLayerValidator(logger)
	v.AddLayer(ValidationLayer{
		Name:     "name-present",
		Critical: true,
		Check: func(any) (bool, string) {
			if doc.Name == "" {
				return false, "rule name is required"
			}
			return true, ""
		},
	})
	v.AddLayer(ValidationLayer{
		Name:     "conditions-shape",
		Critical: true,
		Check: func(any) (bool, string) {
			hasAll := len(doc.Conditions.All) > 0
			hasAny := len(doc.Conditions.Any) > 0
			if hasAll == hasAny {
				return false, "exactly one of conditions.all or conditions.any must be set"
			}
			return true, ""
		},
	})
	v.AddLayer(ValidationLayer{
		Name:     "event-type",
		Critical: false,
		Check: func(any) (bool, string) {
			switch doc.Event.Type {
			case LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelFatality:
				return true, ""
			default:
				return false, fmt.Sprintf("invalid event type %q", doc.Event.Type)
			}
		},
	})
	return v.Validate(doc).Valid
}

// RepoOverlay is a minimal repository-level overlay document: additional
// per-repo pattern/config tweaks layered on top of an archetype.
type RepoOverlay struct {
	BlacklistPatterns []string `json:"blacklistPatterns,omitempty"`
	WhitelistPatterns []string `json:"whitelistPatterns,omitempty"`
}

// ValidateRepoOverlay implements §4.A validateRepoOverlay(doc) -> bool.
func ValidateRepoOverlay(doc *RepoOverlay, logger *zap.Logger) bool {
	v := NewMultiLayerValidator(logger)
	v.AddLayer(ValidationLayer{
		Name:     "at-least-one-pattern-list",
		Critical: true,
		Check: func(any) (bool, string) {
			if len(doc.BlacklistPatterns) == 0 && len(doc.WhitelistPatterns) == 0 {
				return false, "overlay has no pattern lists"
			}
			return true, ""
		},
	})
	return v.Validate(doc).Valid
}
