package friend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizduel/backend/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service maintains the friend graph: pending requests and accepted
// friendships, one row per pair with a direction.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type Friend struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type SendRequestRequest struct {
	SenderID         string
	ReceiverUsername string
}

// SendRequest creates a pending friend request. If the receiver already has a
// pending request towards the sender, the two are made friends instead.
func (s *Service) SendRequest(ctx context.Context, req SendRequestRequest) error {
	const findUserStmt = `SELECT user_id FROM users WHERE username = $1;`

	var receiverID string
	err := s.db.QueryRow(ctx, findUserStmt, req.ReceiverUsername).Scan(&receiverID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: username=%s", req.ReceiverUsername))
	}
	if err != nil {
		return fmt.Errorf("find receiver: %w", err)
	}

	if receiverID == req.SenderID {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("cannot send a friend request to yourself"))
	}

	// A pending request in the opposite direction is accepted instead of
	// creating a mirror request.
	const acceptReverseStmt = `
UPDATE friendships SET accepted = TRUE
WHERE sender_id = $1 AND receiver_id = $2 AND NOT accepted;`

	ct, err := s.db.Exec(ctx, acceptReverseStmt, receiverID, req.SenderID)
	if err != nil {
		return fmt.Errorf("accept reverse request: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	const existsStmt = `
SELECT EXISTS (
	SELECT 1 FROM friendships
	WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
);`

	var exists bool
	if err := s.db.QueryRow(ctx, existsStmt, req.SenderID, receiverID).Scan(&exists); err != nil {
		return fmt.Errorf("check existing friendship: %w", err)
	}
	if exists {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("friend request already exists"))
	}

	const insStmt = `
INSERT INTO friendships (sender_id, receiver_id, accepted) VALUES ($1, $2, FALSE);`

	if _, err := s.db.Exec(ctx, insStmt, req.SenderID, receiverID); err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

type AcceptRequestRequest struct {
	UserID   string
	SenderID string
}

func (s *Service) AcceptRequest(ctx context.Context, req AcceptRequestRequest) error {
	const stmt = `
UPDATE friendships SET accepted = TRUE
WHERE sender_id = $1 AND receiver_id = $2 AND NOT accepted;`

	ct, err := s.db.Exec(ctx, stmt, req.SenderID, req.UserID)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("no pending request from user %s", req.SenderID))
	}
	return nil
}

type RejectRequestRequest struct {
	UserID   string
	SenderID string
}

func (s *Service) RejectRequest(ctx context.Context, req RejectRequestRequest) error {
	const stmt = `
DELETE FROM friendships
WHERE sender_id = $1 AND receiver_id = $2 AND NOT accepted;`

	ct, err := s.db.Exec(ctx, stmt, req.SenderID, req.UserID)
	if err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("no pending request from user %s", req.SenderID))
	}
	return nil
}

type RemoveFriendRequest struct {
	UserID   string
	FriendID string
}

func (s *Service) RemoveFriend(ctx context.Context, req RemoveFriendRequest) error {
	const stmt = `
DELETE FROM friendships
WHERE accepted AND (
	(sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
);`

	ct, err := s.db.Exec(ctx, stmt, req.UserID, req.FriendID)
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("not friends with user %s", req.FriendID))
	}
	return nil
}

type ListFriendsRequest struct {
	UserID string
}

func (s *Service) ListFriends(ctx context.Context, req ListFriendsRequest) ([]Friend, error) {
	const stmt = `
SELECT u.user_id, u.username
FROM friendships f
JOIN users u ON u.user_id = CASE WHEN f.sender_id = $1 THEN f.receiver_id ELSE f.sender_id END
WHERE f.accepted AND (f.sender_id = $1 OR f.receiver_id = $1)
ORDER BY u.username;`

	return s.collectFriends(ctx, stmt, req.UserID)
}

type ListPendingRequest struct {
	UserID string
}

// ListPending returns the users who have sent a request awaiting this user's
// decision.
func (s *Service) ListPending(ctx context.Context, req ListPendingRequest) ([]Friend, error) {
	const stmt = `
SELECT u.user_id, u.username
FROM friendships f
JOIN users u ON u.user_id = f.sender_id
WHERE NOT f.accepted AND f.receiver_id = $1
ORDER BY u.username;`

	return s.collectFriends(ctx, stmt, req.UserID)
}

func (s *Service) collectFriends(ctx context.Context, stmt, userID string) ([]Friend, error) {
	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Friend, error) {
		var f Friend
		err := r.Scan(&f.UserID, &f.Username)
		return f, err
	})
}
