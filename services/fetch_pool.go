// services/fetch_pool.go
package services

import "context"

// FetchClass partitions outbound calls so a slow batch in one class cannot
// starve another — a 400-title achievement sweep should not block cover-art
// lookups or friend-profile fetches.
type FetchClass int

const (
	ClassAchievements FetchClass = iota
	ClassFriendProfiles
	ClassCovers
)

// Per-class ceilings tuned against upstream rate limits.
const (
	DefaultAchievementSlots   = 10
	DefaultFriendProfileSlots = 5
	DefaultCoverSlots         = 10
)

// FetchPool caps concurrent outbound calls per resource class. Submissions
// past the ceiling block until a slot frees; there is no fire-and-forget —
// Run always returns the task's result to its caller.
type FetchPool struct {
	slots map[FetchClass]chan struct{}
}

func NewFetchPool() *FetchPool {
	return NewFetchPoolWithLimits(DefaultAchievementSlots, DefaultFriendProfileSlots, DefaultCoverSlots)
}

func NewFetchPoolWithLimits(achievements, friendProfiles, covers int) *FetchPool {
	return &FetchPool{
		slots: map[FetchClass]chan struct{}{
			ClassAchievements:   make(chan struct{}, achievements),
			ClassFriendProfiles: make(chan struct{}, friendProfiles),
			ClassCovers:         make(chan struct{}, covers),
		},
	}
}

// Run executes task once a slot in the class is free, blocking until then or
// until ctx is done. A task that has started always runs to completion.
func (p *FetchPool) Run(ctx context.Context, class FetchClass, task func() error) error {
	sem := p.slots[class]
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	return task()
}
