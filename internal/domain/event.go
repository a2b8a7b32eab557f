package domain

const (
	EventNamePlayerJoined     = "session.player_joined"
	EventNameGameStarted      = "session.started"
	EventNameQuestionAdvanced = "session.question_advanced"
	EventNameAnswerScored     = "session.answer_scored"
	EventNameGameOver         = "session.game_over"
	EventNameSessionEnded     = "session.ended"
	EventNameScoresFinalized  = "score.finalized"
)

type EventPlayerJoined struct {
	SessionID string
	UserID    string
	Roster    []Player
	Details   Session
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventGameStarted struct {
	SessionID string
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventQuestionAdvanced struct {
	SessionID string
	Question  QuestionView
	Number    int
	IsLast    bool
}

func (EventQuestionAdvanced) Name() string { return EventNameQuestionAdvanced }

type EventAnswerScored struct {
	SessionID     string
	UserID        string
	Username      string
	IsCorrect     bool
	PointsAwarded int
	CurrentScore  int
}

func (EventAnswerScored) Name() string { return EventNameAnswerScored }

type EventGameOver struct {
	SessionID string
}

func (EventGameOver) Name() string { return EventNameGameOver }

type EventSessionEnded struct {
	Session Session
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

// EventScoresFinalized carries the committed score entries and each player's
// new lifetime total, consumed by the leaderboard.
type EventScoresFinalized struct {
	SessionID string
	Entries   []FinalizedScore
}

func (EventScoresFinalized) Name() string { return EventNameScoresFinalized }

type FinalizedScore struct {
	UserID     string
	Username   string
	Amount     int
	NewTotal   int
	CategoryID int64
	Difficulty Difficulty
}
