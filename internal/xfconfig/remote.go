package xfconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/security"
	"github.com/xfidelity/xfidelity/internal/xferrors"
)

const (
	remoteFetchMaxAttempts = 3
	remoteFetchRetryDelay  = time.Second
)

// RemoteClient implements §4.C: fetchArchetype over HTTP with bounded retry
// and left-merge of server-identifying metadata before validation.
type RemoteClient struct {
	HTTPClient *http.Client
	Allowlist  security.DomainAllowlist
	Logger     *zap.Logger
}

// NewRemoteClient builds a RemoteClient with sane defaults.
func NewRemoteClient(logger *zap.Logger) *RemoteClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// FetchArchetype implements §4.C fetchArchetype(configServer, archetype,
// logPrefix?) -> ArchetypeConfig. It issues GET {configServer}/archetypes/{archetype}
// with an X-Log-Prefix header, retries up to remoteFetchMaxAttempts times with
// a fixed delay between attempts on transport/non-200 failures, and fails
// immediately (no retry) when a 200 response doesn't pass ValidateArchetype.
func (c *RemoteClient) FetchArchetype(ctx context.Context, configServer, archetype, logPrefix string) (*ArchetypeConfig, error) {
	if err := security.ValidateURL(configServer, c.Allowlist); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/archetypes/%s", configServer, archetype)

	var lastErr error
	for attempt := 1; attempt <= remoteFetchMaxAttempts; attempt++ {
		doc, err := c.fetchOnce(ctx, url, logPrefix)
		if err == nil {
			return doc, nil
		}
		if _, invalid := err.(*xferrors.InvalidArchetypeConfigError); invalid {
			return nil, err
		}
		lastErr = err
		c.Logger.Warn(fmt.Sprintf("Attempt %d failed: %v", attempt, err), zap.String("logPrefix", logPrefix))
		if attempt < remoteFetchMaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(remoteFetchRetryDelay):
			}
		}
	}
	return nil, &xferrors.RemoteFetchFailedError{Attempts: remoteFetchMaxAttempts, Err: lastErr}
}

func (c *RemoteClient) fetchOnce(ctx context.Context, url, logPrefix string) (*ArchetypeConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if logPrefix != "" {
		req.Header.Set("X-Log-Prefix", logPrefix)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	raw["description"] = "Remote archetype configuration"
	raw["configServer"] = extractConfigServer(url)
	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode merged document: %w", err)
	}

	var doc ArchetypeConfig
	if err := json.Unmarshal(merged, &doc); err != nil {
		return nil, fmt.Errorf("decode merged archetype: %w", err)
	}

	if !ValidateArchetype(&doc, c.Logger) {
		return nil, &xferrors.InvalidArchetypeConfigError{Source: "remote"}
	}
	return &doc, nil
}

func extractConfigServer(archetypeURL string) string {
	const suffix = "/archetypes/"
	if idx := bytes.LastIndex([]byte(archetypeURL), []byte(suffix)); idx >= 0 {
		return archetypeURL[:idx]
	}
	return archetypeURL
}
