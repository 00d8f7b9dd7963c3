package domain

import "time"

// Interaction is one automated question/answer exchange. It backs the
// helpful / not-helpful feedback flow: a not-helpful verdict escalates
// the recorded question to a human operator.
type Interaction struct {
	ID        int64
	UserID    string
	Question  string
	Answer    string
	Resolved  bool
	CreatedAt time.Time
}
