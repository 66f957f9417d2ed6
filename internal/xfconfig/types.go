// Package xfconfig implements the archetype schema validator (A), the
// exemption store (B), the HTTP config client (C), and the config resolver
// (D) described in SPEC_FULL.md §4.
package xfconfig

import "time"

// ErrorLevel is the ordered severity attached to a rule's event.
type ErrorLevel string

const (
	LevelTrace    ErrorLevel = "trace"
	LevelDebug    ErrorLevel = "debug"
	LevelInfo     ErrorLevel = "info"
	LevelWarning  ErrorLevel = "warning"
	LevelError    ErrorLevel = "error"
	LevelFatality ErrorLevel = "fatality"
)

// ArchetypeConfig is §3's ArchetypeConfig entity.
type ArchetypeConfig struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	ConfigServer string         `json:"configServer,omitempty"`
	Rules        []any          `json:"rules"` // []string or []RuleConfig
	Operators    []string       `json:"operators,omitempty"`
	Facts        []string       `json:"facts,omitempty"`
	Plugins      []string       `json:"plugins,omitempty"`
	Config       ArchetypeTuning `json:"config"`
}

// ArchetypeTuning is ArchetypeConfig.config.
type ArchetypeTuning struct {
	MinimumDependencyVersions map[string]string `json:"minimumDependencyVersions,omitempty"`
	StandardStructure         map[string]any     `json:"standardStructure,omitempty"`
	BlacklistPatterns         []string           `json:"blacklistPatterns"`
	WhitelistPatterns         []string           `json:"whitelistPatterns"`
}

// Condition is the §3 sum type: exactly one of All, Any, or the Leaf
// fields is populated.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`

	// Leaf fields.
	Fact     string         `json:"fact,omitempty"`
	Operator string         `json:"operator,omitempty"`
	Value    any            `json:"value,omitempty"`
	Path     string         `json:"path,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// IsLeaf reports whether this Condition is a leaf (not an all/any branch).
func (c Condition) IsLeaf() bool {
	return len(c.All) == 0 && len(c.Any) == 0
}

// RuleEvent is RuleConfig.event.
type RuleEvent struct {
	Type   ErrorLevel     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// OnErrorSpec is RuleConfig.onError.
type OnErrorSpec struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// RuleConfig is §3's RuleConfig entity.
type RuleConfig struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Conditions      Conditions  `json:"conditions"`
	Event           RuleEvent   `json:"event"`
	ErrorBehavior   string      `json:"errorBehavior,omitempty"` // "swallow" | "fatal"
	OnError         *OnErrorSpec `json:"onError,omitempty"`
}

// Conditions is RuleConfig.conditions: exactly one of All/Any must be set.
type Conditions struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// Exemption is §3's Exemption entity.
type Exemption struct {
	RepoURL        string    `json:"repoUrl"`
	Rule           string    `json:"rule"`
	ExpirationDate time.Time `json:"expirationDate"`
	Reason         string    `json:"reason"`
}

// Expired reports whether the exemption is no longer active as of now.
func (e Exemption) Expired(now time.Time) bool {
	return !e.ExpirationDate.After(now)
}

// CoreOptions is the fully parsed configuration-option surface from §6,
// produced by the CLI entrypoint (cmd/xfidelity) and threaded into
// ExecutionConfig.
type CoreOptions struct {
	Archetype            string
	ConfigServer         string
	LocalConfigPath      string
	GithubConfigLocation string
	ExtraPlugins         []string
	OpenAIEnabled        bool
	LogLevel             string
	TelemetryEnabled     bool
	TelemetryCollector   string
	MaxFileSize          int64
	Timeout              time.Duration
	JSONTTL              time.Duration
	FileCacheTTL         time.Duration
	EnableFileLogging    bool
	Mode                 string
	Concurrency          int
	LogPrefix            string
}

// DefaultCoreOptions returns the §6-documented defaults.
func DefaultCoreOptions() CoreOptions {
	return CoreOptions{
		Archetype:        "node-fullstack",
		LogLevel:         "info",
		TelemetryEnabled: true,
		MaxFileSize:      1 << 20,
		Timeout:          60 * time.Second,
		JSONTTL:          60 * time.Second,
		FileCacheTTL:     60 * time.Minute,
		Mode:             "cli",
		Concurrency:      1,
	}
}

// ExecutionConfig is §3's ExecutionConfig entity: immutable once returned
// to the orchestrator for a given archetype key.
type ExecutionConfig struct {
	Archetype   ArchetypeConfig
	Rules       []RuleConfig
	Exemptions  []Exemption
	CLIOptions  CoreOptions
}
