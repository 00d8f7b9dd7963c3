package domain

// Message is one append-only entry in a ticket's conversation log.
// Timestamp is float epoch seconds; ordering within a ticket is by
// (Timestamp, Seq) with Seq breaking ties.
type Message struct {
	Seq       int64   `json:"id"`
	TicketID  string  `json:"ticket_id"`
	AuthorID  string  `json:"user_id"`
	Timestamp float64 `json:"date"`
	Body      string  `json:"message"`
}
