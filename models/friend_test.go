package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingEdge(accountID string, requestedByMe bool) FriendEdge {
	return FriendEdge{
		AccountID:     accountID,
		DisplayName:   accountID,
		Status:        FriendStatusPending,
		Source:        FriendSourceUser,
		RequestedByMe: requestedByMe,
	}
}

func TestAppendEdgeIfAbsent(t *testing.T) {
	op := AppendEdgeIfAbsent(pendingEdge("bob", true))

	edges, applied := op(nil)
	assert.True(t, applied)
	require.Len(t, edges, 1)

	// duplicate add hits the guard, list unchanged
	edges, applied = op(edges)
	assert.False(t, applied)
	assert.Len(t, edges, 1)

	// guard matches on counterparty regardless of status
	accepted := []FriendEdge{{AccountID: "bob", Status: FriendStatusAccepted, Source: FriendSourceUser}}
	_, applied = op(accepted)
	assert.False(t, applied)
}

func TestAcceptPendingEdge(t *testing.T) {
	edges := []FriendEdge{pendingEdge("alice", false), pendingEdge("bob", true)}

	got, applied := AcceptPendingEdge("bob")(edges)
	require.True(t, applied)
	assert.Equal(t, FriendStatusAccepted, got[1].Status)
	// original slice untouched — ops are pure
	assert.Equal(t, FriendStatusPending, edges[1].Status)

	// already accepted → guard fails
	_, applied = AcceptPendingEdge("bob")(got)
	assert.False(t, applied)

	// no edge at all → guard fails
	_, applied = AcceptPendingEdge("carol")(edges)
	assert.False(t, applied)
}

func TestRemovePendingEdge(t *testing.T) {
	edges := []FriendEdge{
		pendingEdge("alice", false),
		{AccountID: "bob", Status: FriendStatusAccepted, Source: FriendSourceUser},
	}

	got, applied := RemovePendingEdge("alice")(edges)
	assert.True(t, applied)
	assert.Len(t, got, 1)

	// accepted edges are out of reach for reject
	_, applied = RemovePendingEdge("bob")(edges)
	assert.False(t, applied)
}

func TestRemoveEdge(t *testing.T) {
	edges := []FriendEdge{
		pendingEdge("alice", false),
		{AccountID: "bob", Status: FriendStatusAccepted, Source: FriendSourceUser},
	}

	// removes regardless of status — pending and accepted alike
	got, applied := RemoveEdge("alice")(edges)
	assert.True(t, applied)
	assert.Len(t, got, 1)

	got, applied = RemoveEdge("bob")(edges)
	assert.True(t, applied)
	assert.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].AccountID)

	_, applied = RemoveEdge("carol")(edges)
	assert.False(t, applied)
}
