// services/apperrors.go
package services

import (
	"errors"
	"fmt"
)

// Friend-graph operation failures — always reported to the caller, never
// swallowed.
var (
	ErrNoPendingRequest     = errors.New("no pending friend request")
	ErrSelfFriendRequest    = errors.New("cannot send a friend request to yourself")
	ErrCounterpartyNotFound = errors.New("counterparty not found")
	ErrFriendshipNotFound   = errors.New("friendship not found")
)

// ErrNotSupported is returned by adapters for capabilities the provider does
// not expose (e.g. Epic has no achievements API).
var ErrNotSupported = errors.New("not supported by provider")

// CredentialExchangeError means one hop of a provider's token-acquisition
// protocol failed. No partial auth context is ever returned alongside it.
type CredentialExchangeError struct {
	Provider string
	Hop      string
	Err      error
}

func (e *CredentialExchangeError) Error() string {
	return fmt.Sprintf("%s credential exchange failed at %q hop: %v", e.Provider, e.Hop, e.Err)
}

func (e *CredentialExchangeError) Unwrap() error { return e.Err }

// UpstreamError wraps a failed provider call with the provider and the
// resource class that failed. Fatal for profile/title-list resources, merely
// degrading for per-item achievement and friend-profile fetches.
type UpstreamError struct {
	Provider string
	Resource string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream unavailable (%s): %v", e.Provider, e.Resource, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// RunError attaches the orchestrator stage a sync run died in. Only the
// CredentialCheck and TitleList stages can produce one — everything later
// degrades per item instead of failing the run.
type RunError struct {
	Stage SyncStage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
