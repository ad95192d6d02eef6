package models

import "time"

// Friend edge status. Provider-imported edges are always accepted on import;
// only in-app ("User" source) edges go through the pending state.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)

// FriendSourceUser tags edges created by in-app friend requests, as opposed to
// edges imported from a provider (which carry the provider name as source).
const FriendSourceUser = "User"

// FriendEdge is one directed friend relationship as seen from the owning
// user's document. For source="User" the AccountID is the counterparty's
// in-app public id and a mirrored edge lives in the counterparty's document;
// for provider sources it is the provider-native account id.
type FriendEdge struct {
	AccountID     string     `json:"account_id"`
	DisplayName   string     `json:"display_name"`
	ProfileURL    string     `json:"profile_url,omitempty"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	Since         *time.Time `json:"since,omitempty"` // unknown for most providers
	Status        string     `json:"status"`
	Source        string     `json:"source"`
	RequestedByMe bool       `json:"requested_by_me"` // meaningful only for source="User"
}

// EdgeOp is one guarded mutation of a user's edge list. It returns the new
// list and whether the guard held; when the guard fails the op is a no-op,
// never an error. Keeping these pure lets the two halves of a mirrored write
// run in either order and converge on retry.
type EdgeOp func(edges []FriendEdge) ([]FriendEdge, bool)

// AppendEdgeIfAbsent appends edge unless any edge to the same counterparty
// already exists. The guard is what makes a duplicate add harmless.
func AppendEdgeIfAbsent(edge FriendEdge) EdgeOp {
	return func(edges []FriendEdge) ([]FriendEdge, bool) {
		for _, e := range edges {
			if e.AccountID == edge.AccountID {
				return edges, false
			}
		}
		return append(edges, edge), true
	}
}

// AcceptPendingEdge transitions the edge to accountID from pending to
// accepted. Guard: a pending edge to that counterparty exists.
func AcceptPendingEdge(accountID string) EdgeOp {
	return func(edges []FriendEdge) ([]FriendEdge, bool) {
		for i, e := range edges {
			if e.AccountID == accountID && e.Status == FriendStatusPending {
				out := make([]FriendEdge, len(edges))
				copy(out, edges)
				out[i].Status = FriendStatusAccepted
				return out, true
			}
		}
		return edges, false
	}
}

// RemovePendingEdge removes the edge to accountID only while it is pending
// (the reject path). Guard: a pending edge exists.
func RemovePendingEdge(accountID string) EdgeOp {
	return removeEdge(accountID, true)
}

// RemoveEdge removes the edge to accountID regardless of status.
func RemoveEdge(accountID string) EdgeOp {
	return removeEdge(accountID, false)
}

func removeEdge(accountID string, pendingOnly bool) EdgeOp {
	return func(edges []FriendEdge) ([]FriendEdge, bool) {
		for i, e := range edges {
			if e.AccountID != accountID {
				continue
			}
			if pendingOnly && e.Status != FriendStatusPending {
				continue
			}
			out := make([]FriendEdge, 0, len(edges)-1)
			out = append(out, edges[:i]...)
			out = append(out, edges[i+1:]...)
			return out, true
		}
		return edges, false
	}
}
