package models

import "time"

// QuizAnswer is one answered question with its timing.
type QuizAnswer struct {
	QuestionID string    `json:"question_id"`
	Choice     string    `json:"choice"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	AnsweredAt time.Time `json:"answered_at"`
}

// QuizAnswerSet is the complete, ordered answer record for one participant.
// It is created exactly once when the participant finishes the quiz and is
// immutable afterwards; its presence is what moves that participant to the
// waiting-for-results step regardless of the session-wide status.
type QuizAnswerSet struct {
	Answers     []QuizAnswer `json:"answers"`
	CompletedAt time.Time    `json:"completed_at"`
}
