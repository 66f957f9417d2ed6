package xferrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsProduceNonEmptyMessages(t *testing.T) {
	cases := []error{
		&InvalidArchetypeNameError{Name: "bad name"},
		&InvalidArchetypeConfigError{Source: "remote"},
		&InvalidArchetypeConfigError{Source: "local"},
		&InvalidArchetypeConfigError{Source: "builtin", Reason: "failed validation"},
		&NoConfigurationFoundError{Archetype: "x", Source: "local"},
		&NoConfigurationFoundError{Archetype: "x", Source: "builtin"},
		&RemoteFetchFailedError{Attempts: 3, Err: errors.New("timeout")},
		&RemoteRateLimitedError{Key: "k"},
		&PluginNotFoundError{Name: "p"},
		&PluginLoadFailedError{Name: "p", Err: errors.New("not found")},
		&PluginInvalidFormatError{Reason: "missing version"},
		&PluginExecutionFailedError{Plugin: "p", Function: "f", Err: errors.New("boom")},
		&InvalidRuleError{Name: "r", Reason: "bad shape"},
		&EngineExecutionFailedError{FilePath: "a.js", Err: errors.New("boom")},
		&UrlUnsafeError{URL: "http://x", Reason: "not https"},
		&CommandInjectionBlockedError{Argument: "; rm -rf"},
		&PathTraversalBlockedError{Path: "../x"},
		&CloneFailedError{RepoURL: "org/repo", Err: errors.New("denied")},
		&CloneLockTimeoutError{RepoHash: "abc"},
	}
	for _, err := range cases {
		if err.Error() == "" {
			t.Errorf("expected a non-empty message from %T", err)
		}
	}
}

func TestUnwrapChainsWorkWithErrorsAs(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := fmt.Errorf("context: %w", &RemoteFetchFailedError{Attempts: 3, Err: inner})

	var target *RemoteFetchFailedError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to find the RemoteFetchFailedError in the chain")
	}
	if !errors.Is(target, inner) && target.Unwrap() != inner {
		t.Fatal("expected Unwrap to expose the root cause")
	}
}

func TestEachErrorUnwrapsToItsUnderlyingError(t *testing.T) {
	inner := errors.New("boom")
	unwrappers := []interface {
		error
		Unwrap() error
	}{
		&RemoteFetchFailedError{Err: inner},
		&PluginLoadFailedError{Err: inner},
		&PluginExecutionFailedError{Err: inner},
		&EngineExecutionFailedError{Err: inner},
		&CloneFailedError{Err: inner},
	}
	for _, u := range unwrappers {
		if u.Unwrap() != inner {
			t.Errorf("%T.Unwrap() did not return the wrapped error", u)
		}
	}
}
