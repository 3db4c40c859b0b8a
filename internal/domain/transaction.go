package domain

// Transaction Model
type Transaction struct {
	Timestamp int64   `json:"timestamp"` // Epoch seconds of creation
	ID        string  `json:"id"`        // Epoch seconds joined with the sender identity
	From      string  `json:"from"`      // Sender identity
	To        string  `json:"to"`        // Recipient identity
	Amount    float64 `json:"amount"`    // Amount of the transaction
}
