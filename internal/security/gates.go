// Package security implements the engine's security gates: URL/SSRF
// validation, safe git subprocess invocation, and path-traversal guards.
// The path-traversal checks mirror pkg/catalog/plugin/file_config_store.go's
// validateConfigPath (reject any ".." segment) generalized to an arbitrary
// allowlisted base directory.
package security

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xfidelity/xfidelity/internal/xferrors"
)

const maxURLLength = 2000

// DomainAllowlist restricts which hosts fetchArchetype/telemetry POSTs may
// target. An empty allowlist permits any public, non-private host.
type DomainAllowlist []string

// ValidateURL implements §4.K validateUrl: HTTPS only, allowlisted host (if
// an allowlist is configured), no private/loopback/link-local ranges,
// length bounded.
func ValidateURL(rawURL string, allow DomainAllowlist) error {
	if len(rawURL) > maxURLLength {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "exceeds maximum length"}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "unparsable: " + err.Error()}
	}
	if u.Scheme != "https" {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "scheme must be https"}
	}
	if u.User != nil {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "credentials in URL are not allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "missing host"}
	}
	if len(allow) > 0 && !hostAllowed(host, allow) {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "host not in allowlist"}
	}
	if isPrivateHost(host) {
		return &xferrors.UrlUnsafeError{URL: rawURL, Reason: "private/loopback/link-local host blocked"}
	}
	return nil
}

func hostAllowed(host string, allow DomainAllowlist) bool {
	for _, a := range allow {
		if strings.EqualFold(host, a) || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func isPrivateHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname, not a literal IP; DNS resolution is left to the HTTP
		// transport. Callers that need SSRF-hardening against DNS rebinding
		// should resolve and re-check before connecting.
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// CreateSanitizedURL reconstructs a URL via net/url, dropping its fragment,
// per §4.K createSanitizedUrl. A URL carrying userinfo is rejected by
// ValidateURL before reconstruction.
func CreateSanitizedURL(rawURL string, allow DomainAllowlist) (string, error) {
	if err := ValidateURL(rawURL, allow); err != nil {
		return "", err
	}
	u, _ := url.Parse(rawURL)
	u.User = nil
	u.Fragment = ""
	return u.String(), nil
}

var gitSubcommandAllowlist = map[string]bool{
	"clone":    true,
	"fetch":    true,
	"checkout": true,
	"pull":     true,
	"config":   true,
}

// safeArgPattern matches the tight safe-character set for git subprocess
// arguments: alphanumerics plus a small set of path/URL punctuation.
var safeArgPattern = regexp.MustCompile(`^[A-Za-z0-9_./:@=+-]+$`)

const maxGitArgLength = 512

// ValidateGitArg rejects an argument that contains traversal sequences,
// control characters, or characters outside the safe set.
func ValidateGitArg(arg string) error {
	if arg == "" {
		return nil
	}
	if len(arg) > maxGitArgLength {
		return &xferrors.CommandInjectionBlockedError{Argument: arg}
	}
	if strings.Contains(arg, "..") || strings.Contains(arg, "~") {
		return &xferrors.CommandInjectionBlockedError{Argument: arg}
	}
	for _, r := range arg {
		if r < 0x20 || r == 0x7f {
			return &xferrors.CommandInjectionBlockedError{Argument: arg}
		}
	}
	if !safeArgPattern.MatchString(arg) {
		return &xferrors.CommandInjectionBlockedError{Argument: arg}
	}
	return nil
}

// GitCommandOptions configures SafeGitCommand.
type GitCommandOptions struct {
	Cwd     string
	Timeout time.Duration
}

// SafeGitCommand spawns git as a direct child process (never through a
// shell) with an allowlisted subcommand and validated arguments, matching
// §4.K's SafeGitCommand contract.
func SafeGitCommand(ctx context.Context, subcommand string, args []string, opts GitCommandOptions) (stdout string, err error) {
	if !gitSubcommandAllowlist[subcommand] {
		return "", &xferrors.CommandInjectionBlockedError{Argument: subcommand}
	}
	for _, a := range args {
		if err := ValidateGitArg(a); err != nil {
			return "", err
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullArgs := append([]string{subcommand}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("Git command timed out after %dms", timeout.Milliseconds())
	}
	if runErr != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", subcommand, runErr, errBuf.String())
	}
	return outBuf.String(), nil
}

// ValidateDirectoryPath rejects paths containing ".." segments or null
// bytes, per §4.K validateDirectoryPath. It does not require the path to
// exist.
func ValidateDirectoryPath(p string) error {
	if strings.ContainsRune(p, 0) {
		return &xferrors.PathTraversalBlockedError{Path: p}
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return &xferrors.PathTraversalBlockedError{Path: p}
		}
	}
	return nil
}

// CreateSecurePath joins base and user, then verifies the resolved path
// does not escape base, per §4.K createSecurePath.
func CreateSecurePath(base, user string) (string, error) {
	if err := ValidateDirectoryPath(user); err != nil {
		return "", err
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	joined := filepath.Join(absBase, user)
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve joined path: %w", err)
	}
	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(filepath.Separator)) {
		return "", &xferrors.PathTraversalBlockedError{Path: user}
	}
	return resolved, nil
}
