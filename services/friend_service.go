// services/friend_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"game-library-system/models"

	"github.com/gofiber/fiber/v2"
)

// FriendService runs the add/accept/reject/remove protocol over mirrored
// edges in two separate aggregate documents. Every operation is two guarded
// per-side writes — no cross-document lock, convergence comes from the guards.
type FriendService struct {
	Store AggregateStore
}

func NewFriendService(store AggregateStore) *FriendService {
	return &FriendService{Store: store}
}

// resolve loads the acting user (by document id) and the counterparty (by
// in-app public id).
func (s *FriendService) resolve(ctx context.Context, userID, counterpartyID string) (*models.UserAggregate, *models.UserAggregate, error) {
	me, err := s.Store.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if me.PublicID == counterpartyID {
		return nil, nil, ErrSelfFriendRequest
	}
	other, err := s.Store.FindByPublicID(ctx, counterpartyID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, ErrCounterpartyNotFound
		}
		return nil, nil, err
	}
	return me, other, nil
}

func userEdge(counterparty *models.UserAggregate, requestedByMe bool, since time.Time) models.FriendEdge {
	edge := models.FriendEdge{
		AccountID:     counterparty.PublicID,
		DisplayName:   counterparty.Username,
		Since:         &since,
		Status:        models.FriendStatusPending,
		Source:        models.FriendSourceUser,
		RequestedByMe: requestedByMe,
	}
	if counterparty.AvatarURL != nil {
		edge.AvatarURL = *counterparty.AvatarURL
	}
	return edge
}

// AddFriend creates the mutual pending pair. A repeated add hits the
// append-if-absent guard on both sides and still reports success — the
// operation is idempotent by construction, not by duplicate detection.
func (s *FriendService) AddFriend(ctx context.Context, userID, counterpartyID string) error {
	me, other, err := s.resolve(ctx, userID, counterpartyID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, _, err = s.Store.MirroredEdgeWrite(ctx, me.ID, other.ID,
		models.AppendEdgeIfAbsent(userEdge(other, true, now)),
		models.AppendEdgeIfAbsent(userEdge(me, false, now)),
	)
	if err != nil {
		return err
	}
	log.Printf("[FRIENDS] ➕ request %s → %s", me.PublicID, other.PublicID)
	return nil
}

// AcceptFriend flips a pending pair to accepted. At least one side must still
// hold a pending edge, otherwise there was nothing to accept.
func (s *FriendService) AcceptFriend(ctx context.Context, userID, counterpartyID string) error {
	me, other, err := s.resolve(ctx, userID, counterpartyID)
	if err != nil {
		return err
	}

	appliedA, appliedB, err := s.Store.MirroredEdgeWrite(ctx, me.ID, other.ID,
		models.AcceptPendingEdge(other.PublicID),
		models.AcceptPendingEdge(me.PublicID),
	)
	if err != nil {
		return err
	}
	if !appliedA && !appliedB {
		return ErrNoPendingRequest
	}
	log.Printf("[FRIENDS] ✅ accepted %s ↔ %s", me.PublicID, other.PublicID)
	return nil
}

// RejectFriend drops a pending pair from both documents.
func (s *FriendService) RejectFriend(ctx context.Context, userID, counterpartyID string) error {
	me, other, err := s.resolve(ctx, userID, counterpartyID)
	if err != nil {
		return err
	}

	appliedA, appliedB, err := s.Store.MirroredEdgeWrite(ctx, me.ID, other.ID,
		models.RemovePendingEdge(other.PublicID),
		models.RemovePendingEdge(me.PublicID),
	)
	if err != nil {
		return err
	}
	if !appliedA && !appliedB {
		return ErrNoPendingRequest
	}
	log.Printf("[FRIENDS] 🚫 rejected %s ↔ %s", me.PublicID, other.PublicID)
	return nil
}

// RemoveFriend removes the edge pair regardless of status — it unwinds
// accepted friendships and pending requests alike.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, counterpartyID string) error {
	me, other, err := s.resolve(ctx, userID, counterpartyID)
	if err != nil {
		return err
	}

	appliedA, appliedB, err := s.Store.MirroredEdgeWrite(ctx, me.ID, other.ID,
		models.RemoveEdge(other.PublicID),
		models.RemoveEdge(me.PublicID),
	)
	if err != nil {
		return err
	}
	if !appliedA && !appliedB {
		return ErrFriendshipNotFound
	}
	log.Printf("[FRIENDS] ➖ removed %s ↔ %s", me.PublicID, other.PublicID)
	return nil
}

// --- Fiber handlers ---

func (s *FriendService) HandleAdd(c *fiber.Ctx) error {
	var body struct {
		CounterpartyID string `json:"counterparty_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.CounterpartyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "counterparty_id is required"})
	}
	return s.respond(c, s.AddFriend(c.UserContext(), actingUserID(c), body.CounterpartyID))
}

func (s *FriendService) HandleAccept(c *fiber.Ctx) error {
	return s.respond(c, s.AcceptFriend(c.UserContext(), actingUserID(c), c.Params("id")))
}

func (s *FriendService) HandleReject(c *fiber.Ctx) error {
	return s.respond(c, s.RejectFriend(c.UserContext(), actingUserID(c), c.Params("id")))
}

func (s *FriendService) HandleRemove(c *fiber.Ctx) error {
	return s.respond(c, s.RemoveFriend(c.UserContext(), actingUserID(c), c.Params("id")))
}

// HandleList returns all friend edges grouped by source.
func (s *FriendService) HandleList(c *fiber.Ctx) error {
	agg, err := s.Store.Get(c.UserContext(), actingUserID(c))
	if err != nil {
		return s.respond(c, err)
	}
	friends := agg.Friends
	if friends == nil {
		friends = models.FriendsMap{}
	}
	return c.JSON(fiber.Map{"friends": friends})
}

func (s *FriendService) respond(c *fiber.Ctx, err error) error {
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"ok": true})
	case errors.Is(err, ErrSelfFriendRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrCounterpartyNotFound), errors.Is(err, ErrFriendshipNotFound), errors.Is(err, models.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNoPendingRequest):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("[FRIENDS] ❌ %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func actingUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}
