package xfconfig

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sshFormPattern   = regexp.MustCompile(`^git@([^:]+):([^/]+)/(.+?)(\.git)?$`)
	httpsFormPattern = regexp.MustCompile(`^https://([^/]+)/([^/]+)/(.+?)(\.git)?$`)
	shortFormPattern = regexp.MustCompile(`^([^/]+)/([^/]+)$`)

	defaultGitHubHost = "github.com"
)

// NormalizeGitHubURL canonicalizes any of the three accepted input forms
// (git@host:org/repo(.git)?, https://host/org/repo(.git)?, org/repo) to
// git@host:org/repo.git, per the GLOSSARY entry and §8's idempotence
// property. An empty input returns empty; anything else that doesn't match
// one of the three forms returns an error.
func NormalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if m := sshFormPattern.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("git@%s:%s/%s.git", m[1], m[2], m[3]), nil
	}
	if m := httpsFormPattern.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("git@%s:%s/%s.git", m[1], m[2], m[3]), nil
	}
	if m := shortFormPattern.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("git@%s:%s/%s.git", defaultGitHubHost, m[1], m[2]), nil
	}

	return "", fmt.Errorf("Invalid GitHub URL format: %q", raw)
}
