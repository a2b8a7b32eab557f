package domain

import (
	"strings"
	"time"
)

// Difficulty is the tier a session plays at and a question belongs to.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes user input to a known tier, defaulting to easy.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyMedium:
		return DifficultyMedium
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyEasy
	}
}

// Session is one hosted multiplayer quiz round.
//
// QuestionOrder is assigned once at start and never rewritten. CurrentIndex
// always points at the next question to serve, so the answerable question is
// QuestionOrder[CurrentIndex-1] once the host has advanced at least once.
type Session struct {
	SessionID     string
	HostID        string
	CategoryID    int64
	Difficulty    Difficulty
	CreatedAt     time.Time
	EndedAt       *time.Time
	Active        bool
	QuestionOrder []int64
	CurrentIndex  int
	Players       map[string]*Player
}

// Player is one participant's state within a session.
type Player struct {
	UserID   string
	Username string
	Score    int
	IsHost   bool
	JoinedAt time.Time
}

// Started reports whether the question order has been assigned.
func (s *Session) Started() bool {
	return len(s.QuestionOrder) > 0
}

// Ended reports the terminal state.
func (s *Session) Ended() bool {
	return !s.Active
}

// ActiveQuestion returns the question id submissions are currently scored
// against, or false when no question has been served yet.
func (s *Session) ActiveQuestion() (int64, bool) {
	if s.CurrentIndex == 0 || s.CurrentIndex > len(s.QuestionOrder) {
		return 0, false
	}
	return s.QuestionOrder[s.CurrentIndex-1], true
}

// Clone returns a deep copy used as the working state of a mutation, so a
// failed persistence write leaves the installed aggregate untouched.
func (s *Session) Clone() *Session {
	c := *s
	c.QuestionOrder = append([]int64(nil), s.QuestionOrder...)
	c.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		c.Players[id] = &cp
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// AnswerRecord is the append-only log of one player's submission for one
// question. The (session, player, question) triple is unique.
type AnswerRecord struct {
	SessionID     string
	UserID        string
	QuestionID    int64
	SubmittedText string
	IsCorrect     bool
	PointsAwarded int
	AnsweredAt    time.Time
}

// Question with its correct answer. The answer must never reach clients
// before they submit; Stripped produces the broadcastable view.
type Question struct {
	QuestionID    int64
	Text          string
	Options       []string
	CorrectAnswer string
	Difficulty    Difficulty
	CategoryID    int64
}

// QuestionView is a question without its correct answer.
type QuestionView struct {
	QuestionID int64      `json:"question_id"`
	Text       string     `json:"text"`
	Options    []string   `json:"options"`
	Difficulty Difficulty `json:"difficulty"`
	CategoryID int64      `json:"category_id"`
}

func (q Question) Stripped() QuestionView {
	return QuestionView{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Options:    append([]string(nil), q.Options...),
		Difficulty: q.Difficulty,
		CategoryID: q.CategoryID,
	}
}

type Category struct {
	CategoryID  int64
	Name        string
	Description string
}

// User is the account collaborator's view of a player.
type User struct {
	UserID     string
	Username   string
	TotalScore int
}

// ScoreEntry is one immutable historical score row written at session end.
type ScoreEntry struct {
	UserID     string
	Amount     int
	CategoryID int64
	Difficulty Difficulty
	AchievedAt time.Time
}

// Leaderboard is a list of users and their scores, sorted descending.
type Leaderboard struct {
	Board   string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}
