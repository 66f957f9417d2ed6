// Package telemetry implements the telemetry envelope (J): host/user/repo
// descriptors attached to notable events, with an optional HTTP sink.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/security"
)

// HostInfo describes the machine running the engine.
type HostInfo struct {
	Platform    string `json:"platform"`
	Release     string `json:"release"`
	Type        string `json:"type"`
	Arch        string `json:"arch"`
	CPUs        int    `json:"cpus"`
	TotalMemory uint64 `json:"totalMemory"`
	FreeMemory  uint64 `json:"freeMemory"`
}

// UserInfo describes the invoking user.
type UserInfo struct {
	Username string  `json:"username"`
	HomeDir  string  `json:"homedir"`
	Shell    *string `json:"shell"`
}

// Envelope is §4.J's collectTelemetryData return shape.
type Envelope struct {
	RepoURL      string   `json:"repoUrl"`
	ConfigServer string   `json:"configServer"`
	HostInfo     HostInfo `json:"hostInfo"`
	UserInfo     UserInfo `json:"userInfo"`
	StartTime    int64    `json:"startTime"`
}

// Event is one unit the Sink accepts, e.g. "exemptionAllowed".
type Event struct {
	Type      string
	Data      map[string]any
	Envelope  *Envelope
	Timestamp time.Time
}

// CollectTelemetryData implements §4.J collectTelemetryData. repoUrl is
// obtained via `git config --get remote.origin.url` run through the
// security-gated SafeGitCommand; on empty or failure it is the empty
// string (with an error log), never fatal.
func CollectTelemetryData(ctx context.Context, repoPath, configServer string, logger *zap.Logger) Envelope {
	if logger == nil {
		logger = zap.NewNop()
	}

	repoURL := ""
	out, err := security.SafeGitCommand(ctx, "config", []string{"--get", "remote.origin.url"}, security.GitCommandOptions{Cwd: repoPath, Timeout: 5 * time.Second})
	if err != nil {
		logger.Error("failed to read git remote url", zap.Error(err))
	} else {
		repoURL = strings.TrimSpace(out)
	}

	cs := configServer
	if cs == "" {
		cs = "none"
	}

	host, _ := os.Hostname()
	var shell *string
	if s := os.Getenv("SHELL"); s != "" {
		shell = &s
	}
	username := ""
	homeDir := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
		homeDir = u.HomeDir
	}

	return Envelope{
		RepoURL:      repoURL,
		ConfigServer: cs,
		HostInfo: HostInfo{
			Platform: runtime.GOOS,
			Release:  host,
			Type:     runtime.GOOS,
			Arch:     runtime.GOARCH,
			CPUs:     runtime.NumCPU(),
		},
		UserInfo: UserInfo{
			Username: username,
			HomeDir:  homeDir,
			Shell:    shell,
		},
		StartTime: time.Now().UnixMilli(),
	}
}

// Sink accepts TelemetryEvents and optionally forwards them as JSON POSTs
// to an operator-configured collector URL. An empty collector URL makes Emit
// a local-only no-op (beyond invoking the logger).
type Sink struct {
	CollectorURL string
	Envelope     Envelope
	Logger       *zap.Logger
	Client       *http.Client
	Allowlist    security.DomainAllowlist
	Enabled      bool
}

// NewSink builds a Sink. If enabled is false, Emit is a complete no-op.
func NewSink(enabled bool, collectorURL string, envelope Envelope, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		CollectorURL: collectorURL,
		Envelope:     envelope,
		Logger:       logger,
		Client:       &http.Client{Timeout: 5 * time.Second},
		Enabled:      enabled,
	}
}

// Emit records an event. If a collector URL is configured, it is validated
// via security.ValidateURL and a POST is attempted; any failure degrades to
// a debug log, never an error returned to the caller.
func (s *Sink) Emit(e Event) {
	if s == nil || !s.Enabled {
		return
	}
	if e.Envelope == nil {
		env := s.Envelope
		e.Envelope = &env
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.Logger.Debug("telemetry event", zap.String("type", e.Type), zap.Any("data", e.Data))

	if s.CollectorURL == "" {
		return
	}
	if err := security.ValidateURL(s.CollectorURL, s.Allowlist); err != nil {
		s.Logger.Debug("telemetry collector URL rejected by security gate", zap.Error(err))
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.Logger.Debug("failed to marshal telemetry event", zap.Error(err))
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.CollectorURL, bytes.NewReader(body))
	if err != nil {
		s.Logger.Debug("failed to build telemetry request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Debug("telemetry collector unreachable", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.Logger.Debug("telemetry collector returned non-2xx", zap.Int("status", resp.StatusCode))
	}
}
