package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/event"
)

const (
	maxConcurrent = 100
	subBuffer     = 16
)

// Wire event names, delivered to session subscribers.
const (
	WirePlayerJoined       = "PlayerJoined"
	WireGameJoined         = "GameJoined"
	WireGameStarted        = "GameStarted"
	WireReceiveQuestion    = "ReceiveQuestion"
	WireAnswerResult       = "AnswerResult"
	WirePlayerScoreUpdated = "PlayerScoreUpdated"
	WireGameOver           = "GameOver"
	WireSessionEnded       = "SessionEnded"
)

type (
	// Notification is the envelope every subscriber receives.
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	PlayerPayload struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Score    int    `json:"score"`
		IsHost   bool   `json:"is_host"`
	}

	SessionPayload struct {
		SessionID  string            `json:"session_id"`
		HostID     string            `json:"host_id"`
		CategoryID int64             `json:"category_id"`
		Difficulty domain.Difficulty `json:"difficulty"`
		Active     bool              `json:"active"`
		Players    []PlayerPayload   `json:"players"`
	}

	QuestionPayload struct {
		Question domain.QuestionView `json:"question"`
		Number   int                 `json:"number"`
		IsLast   bool                `json:"is_last"`
	}

	AnswerResultPayload struct {
		IsCorrect     bool `json:"is_correct"`
		PointsAwarded int  `json:"points_awarded"`
		CurrentScore  int  `json:"current_score"`
	}

	ScoreUpdatePayload struct {
		Username string `json:"username"`
		Score    int    `json:"score"`
	}
)

// Redis is the publishing slice of the redis client, for cross-instance
// delivery of the same notifications.
type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

// Gateway owns one subscriber group per session. It translates orchestrator
// events into wire notifications: broadcasts go to the whole group, unicasts
// only to the subscriptions of one user. Delivery is best-effort; a slow
// subscriber drops notifications rather than blocking the session.
type Gateway struct {
	redis  Redis
	prefix string

	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
}

func New(c Config) *Gateway {
	g := &Gateway{
		redis:  c.Redis,
		prefix: c.Prefix,
		groups: make(map[string]map[*Subscription]struct{}),
	}

	// Sync subscriptions: clients must observe question N before N+1 and
	// GameOver before the group is torn down, so the gateway consumes events
	// in publish order. Channel delivery never blocks (drop-on-slow).
	sub := func(name string, h event.Handler) { c.EventBus.SubscribeSync(name, h) }

	sub(domain.EventNamePlayerJoined, func(ctx context.Context, e event.Event) error {
		return g.onPlayerJoined(ctx, e.(domain.EventPlayerJoined))
	})
	sub(domain.EventNameGameStarted, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventGameStarted)
		return g.broadcast(ctx, ev.SessionID, WireGameStarted, nil)
	})
	sub(domain.EventNameQuestionAdvanced, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventQuestionAdvanced)
		return g.broadcast(ctx, ev.SessionID, WireReceiveQuestion, QuestionPayload{
			Question: ev.Question,
			Number:   ev.Number,
			IsLast:   ev.IsLast,
		})
	})
	sub(domain.EventNameAnswerScored, func(ctx context.Context, e event.Event) error {
		return g.onAnswerScored(ctx, e.(domain.EventAnswerScored))
	})
	sub(domain.EventNameGameOver, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventGameOver)
		return g.broadcast(ctx, ev.SessionID, WireGameOver, nil)
	})
	sub(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return g.onSessionEnded(ctx, e.(domain.EventSessionEnded))
	})

	return g
}

// Subscription is one connected client's membership in a session group.
type Subscription struct {
	gw        *Gateway
	sessionID string
	userID    string
	ch        chan Notification

	once sync.Once
}

// C delivers notifications in per-session order.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Close removes the subscription from its group. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.gw.mu.Lock()
		if subs := s.gw.groups[s.sessionID]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.gw.groups, s.sessionID)
			}
		}
		s.gw.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe adds a client to the session's group.
func (g *Gateway) Subscribe(sessionID, userID string) *Subscription {
	s := &Subscription{
		gw:        g,
		sessionID: sessionID,
		userID:    userID,
		ch:        make(chan Notification, subBuffer),
	}

	g.mu.Lock()
	if g.groups[sessionID] == nil {
		g.groups[sessionID] = make(map[*Subscription]struct{})
	}
	g.groups[sessionID][s] = struct{}{}
	g.mu.Unlock()

	return s
}

func (g *Gateway) onPlayerJoined(ctx context.Context, e domain.EventPlayerJoined) error {
	rosterPayload := make([]PlayerPayload, 0, len(e.Roster))
	for _, p := range e.Roster {
		rosterPayload = append(rosterPayload, PlayerPayload{
			UserID:   p.UserID,
			Username: p.Username,
			Score:    p.Score,
			IsHost:   p.IsHost,
		})
	}

	if err := g.broadcast(ctx, e.SessionID, WirePlayerJoined, rosterPayload); err != nil {
		return err
	}

	return g.unicast(ctx, e.SessionID, e.UserID, WireGameJoined, sessionPayload(e.Details, rosterPayload))
}

func (g *Gateway) onAnswerScored(ctx context.Context, e domain.EventAnswerScored) error {
	if err := g.unicast(ctx, e.SessionID, e.UserID, WireAnswerResult, AnswerResultPayload{
		IsCorrect:     e.IsCorrect,
		PointsAwarded: e.PointsAwarded,
		CurrentScore:  e.CurrentScore,
	}); err != nil {
		return err
	}

	return g.broadcast(ctx, e.SessionID, WirePlayerScoreUpdated, ScoreUpdatePayload{
		Username: e.Username,
		Score:    e.CurrentScore,
	})
}

func (g *Gateway) onSessionEnded(ctx context.Context, e domain.EventSessionEnded) error {
	err := g.broadcast(ctx, e.Session.SessionID, WireSessionEnded, sessionPayload(e.Session, nil))
	g.dropGroup(e.Session.SessionID)
	return err
}

func (g *Gateway) broadcast(ctx context.Context, sessionID, name string, data any) error {
	n := Notification{Event: name, Data: data}

	g.mu.RLock()
	for s := range g.groups[sessionID] {
		s.deliver(n)
	}
	g.mu.RUnlock()

	return g.publishRedis(ctx, g.sessionChannel(sessionID), n)
}

func (g *Gateway) unicast(ctx context.Context, sessionID, userID, name string, data any) error {
	n := Notification{Event: name, Data: data}

	g.mu.RLock()
	for s := range g.groups[sessionID] {
		if s.userID == userID {
			s.deliver(n)
		}
	}
	g.mu.RUnlock()

	return g.publishRedis(ctx, g.userChannel(userID), n)
}

func (s *Subscription) deliver(n Notification) {
	select {
	case s.ch <- n:
	default:
		// Drop if the subscriber is slow.
	}
}

func (g *Gateway) dropGroup(sessionID string) {
	g.mu.Lock()
	subs := g.groups[sessionID]
	delete(g.groups, sessionID)
	g.mu.Unlock()

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)
	for s := range subs {
		s := s
		eg.Go(func() error {
			s.Close()
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *Gateway) publishRedis(ctx context.Context, channel string, n Notification) error {
	if g.redis == nil {
		return nil
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s: %v", n.Event, err)
	}

	return g.redis.Publish(ctx, channel, b).Err()
}

func (g *Gateway) sessionChannel(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", g.prefix, sessionID)
}

func (g *Gateway) userChannel(userID string) string {
	return fmt.Sprintf("%s:user:%s", g.prefix, userID)
}

func sessionPayload(ss domain.Session, players []PlayerPayload) SessionPayload {
	if players == nil {
		for _, p := range ss.Players {
			players = append(players, PlayerPayload{
				UserID:   p.UserID,
				Username: p.Username,
				Score:    p.Score,
				IsHost:   p.IsHost,
			})
		}
	}

	return SessionPayload{
		SessionID:  ss.SessionID,
		HostID:     ss.HostID,
		CategoryID: ss.CategoryID,
		Difficulty: ss.Difficulty,
		Active:     ss.Active,
		Players:    players,
	}
}
