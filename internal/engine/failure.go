package engine

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

// RuleFailure is §3's RuleFailure entity.
type RuleFailure struct {
	RuleFailure string             `json:"ruleFailure"`
	Level       xfconfig.ErrorLevel `json:"level"`
	Details     RuleFailureDetails `json:"details"`
}

// RuleFailureDetails is RuleFailure.details.
type RuleFailureDetails struct {
	Message           string         `json:"message,omitempty"`
	ConditionDetails  *LeafDetail    `json:"conditionDetails"`
	AllConditions     []LeafDetail   `json:"allConditions"`
	ConditionType     string         `json:"conditionType"`
	RuleDescription   string         `json:"ruleDescription"`
	Recommendations   []string       `json:"recommendations,omitempty"`
	FilePath          string         `json:"filePath"`
	FileName          string         `json:"fileName"`
	ResultFact        string         `json:"resultFact,omitempty"`
	Details           any            `json:"details,omitempty"`
}

var sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|token|secret|apikey|api_key|credential)`)

const redactedPlaceholder = "***REDACTED***"

// redactSensitive walks a details value (expected to be a JSON-shaped
// map/slice/scalar tree) and replaces any map value whose key matches the
// sensitive-key pattern, mirroring the same redaction rule applied to
// plugin source properties.
func redactSensitive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKeyPattern.MatchString(k) {
				out[k] = redactedPlaceholder
			} else {
				out[k] = redactSensitive(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactSensitive(item)
		}
		return out
	default:
		return v
	}
}

// EngineErrorFailure builds the §4.H per-file engine-throw RuleFailure.
func EngineErrorFailure(filePath, fileName string, err error) RuleFailure {
	return RuleFailure{
		RuleFailure: "engine-error",
		Level:       xfconfig.LevelError,
		Details: RuleFailureDetails{
			Message:       "Engine failed to process file: " + err.Error(),
			ConditionType: "all",
			FilePath:      filePath,
			FileName:      fileName,
		},
	}
}

// BuildFailure implements §4.H's RuleFailure construction for a rule that
// evaluated true, resolving event.params.details against the almanac when
// it names a single fact, relativizing filePath to repoPath when provided,
// and redacting sensitive detail keys.
func BuildFailure(ctx context.Context, rule xfconfig.RuleConfig, result EvalResult, repoPath, absFilePath string, alm *almanac.Almanac) RuleFailure {
	level := result.Event.Type
	switch level {
	case xfconfig.LevelTrace, xfconfig.LevelDebug, xfconfig.LevelInfo, xfconfig.LevelWarning, xfconfig.LevelError, xfconfig.LevelFatality:
	default:
		// Empty or unrecognized event types default to error.
		level = xfconfig.LevelError
	}

	description := rule.Description
	if description == "" {
		description = "No description available"
	}

	recommendations := rule.Recommendations
	if v, ok := result.Event.Params["recommendations"]; ok {
		if rs, ok := toStringSlice(v); ok {
			recommendations = rs
		}
	}

	filePath := absFilePath
	if repoPath != "" {
		if rel, err := filepath.Rel(repoPath, absFilePath); err == nil {
			filePath = rel
		}
	}

	var resolvedDetails any
	var resultFact string
	if raw, ok := result.Event.Params["details"]; ok {
		resolvedDetails, resultFact = resolveEventDetails(ctx, raw, alm)
	}
	if resolvedDetails != nil {
		resolvedDetails = redactSensitive(resolvedDetails)
	}

	return RuleFailure{
		RuleFailure: result.Name,
		Level:       level,
		Details: RuleFailureDetails{
			ConditionDetails: result.ConditionDetails,
			AllConditions:    result.AllConditions,
			ConditionType:    result.ConditionType,
			RuleDescription:  description,
			Recommendations:  recommendations,
			FilePath:         filePath,
			FileName:         filepath.Base(absFilePath),
			ResultFact:       resultFact,
			Details:          resolvedDetails,
		},
	}
}

// resolveEventDetails implements §4.H's event post-processing: a
// `{fact: "name"}` object resolves against the almanac (keeping the
// original object on failure); any other shape passes through unchanged.
func resolveEventDetails(ctx context.Context, raw any, alm *almanac.Almanac) (any, string) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return raw, ""
	}
	factName, ok := m["fact"].(string)
	if !ok {
		return raw, ""
	}
	value, err := alm.FactValue(ctx, factName, nil)
	if err != nil {
		return raw, factName
	}
	return value, factName
}

func toStringSlice(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// DedupeKey builds the within-file dedup key named in §4.H: (ruleFailure,
// event.type, event.params.message).
func DedupeKey(f RuleFailure, message string) string {
	return strings.Join([]string{f.RuleFailure, string(f.Level), message}, "\x00")
}
