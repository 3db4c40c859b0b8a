package ledger

import (
	"context" // Context for outbound calls
	"strconv" // Amount parsing and reply formatting
	"strings" // Recipient/sender field splitting
	"time"    // Notification timestamps

	"github.com/sirupsen/logrus" // Logging library
)

// Reply strings for the give operation
const (
	MsgInsufficientBalance = "Insufficient balance."
	MsgInvalidRequest      = "Invalid request."
)

// Commenter posts a message on an external social surface, used to
// announce a gift on the recipient's profile
type Commenter interface {
	PostComment(ctx context.Context, user, message string) error
}

// Engine validates and executes balance transfers against the store.
// The steps are one logical unit but not atomic: each mutation
// persists on its own, and a failure partway leaves the earlier steps
// in place.
type Engine struct {
	store     *Store    // Ledger state
	commenter Commenter // Gift announcement sink
	projectID int       // Project linked in the announcement
}

// NewEngine creates a transfer engine
func NewEngine(store *Store, commenter Commenter, projectID int) *Engine {
	return &Engine{store: store, commenter: commenter, projectID: projectID}
}

// readableTimestamp formats the current local time the way
// notifications display it
func readableTimestamp() string {
	return time.Now().Format("15:04 on 01/02/06")
}

// formatAmount renders a transfer amount without trailing zeros
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Transfer executes a give request. The users field is
// "<recipient> <sender>", split on the first space only, so a sender
// field containing spaces is taken whole. Preconditions: the amount
// parses and is strictly positive, and the sender's balance covers it.
// On success the reply is the sender's new rounded balance; a failed
// balance precondition replies with the insufficient-balance message;
// any parse or announcement failure collapses to the generic invalid
// message, even when earlier steps already persisted.
func (e *Engine) Transfer(ctx context.Context, rawAmount, rawUsers string) string {
	amount, err := strconv.ParseFloat(strings.TrimSpace(rawAmount), 64)
	if err != nil {
		return MsgInvalidRequest // Amount did not parse
	}
	recipientRaw, senderRaw, found := strings.Cut(rawUsers, " ")
	if !found {
		return MsgInvalidRequest // No sender field at all
	}
	recipient := Normalize(recipientRaw) // Canonical recipient key
	sender := Normalize(senderRaw)       // Canonical sender key
	// A sender never seen holds nothing to give
	senderBalance, ok := e.store.rawBalance(sender)
	if !ok {
		senderBalance = 0
	}
	if !(senderBalance >= amount && amount > 0) {
		return MsgInsufficientBalance
	}
	// Debit, then credit; a never-seen recipient starts from the
	// default before the credit lands
	e.store.SetBalance(ctx, sender, senderBalance-amount)
	recipientBalance, ok := e.store.rawBalance(recipient)
	if !ok {
		recipientBalance = DefaultBalance
	}
	e.store.SetBalance(ctx, recipient, recipientBalance+amount)
	// Notify both parties
	ts := readableTimestamp()
	e.store.AppendNotification(ctx, sender, ts+" - You gave "+formatAmount(amount)+" Gems to "+recipient+"!")
	e.store.AppendNotification(ctx, recipient, ts+" - "+sender+" gave you "+formatAmount(amount)+" Gems")
	// Announce the gift on the recipient's profile. A failure here is
	// reported as a generic failure even though the balances above are
	// already persisted.
	message := "@" + sender + " gave you " + formatAmount(amount) + " Gems in ScratchGems https://scratch.mit.edu/projects/" + strconv.Itoa(e.projectID)
	if err := e.commenter.PostComment(ctx, recipient, message); err != nil {
		logrus.WithFields(logrus.Fields{
			"from":   sender,      // Sender identity
			"to":     recipient,   // Recipient identity
			"amount": amount,      // Transferred amount
			"error":  err.Error(), // Comment failure
		}).Error("Gift announcement failed after balances were updated")
		return MsgInvalidRequest
	}
	e.store.RecordTransaction(ctx, sender, recipient, amount)
	logrus.WithFields(logrus.Fields{
		"from":   sender,    // Sender identity
		"to":     recipient, // Recipient identity
		"amount": amount,    // Transferred amount
	}).Info("Transfer completed")
	return strconv.Itoa(e.store.Balance(sender))
}
