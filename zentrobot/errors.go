package zentrobot

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing indicates a ticket family hasn't been set up
	// for the guild yet. User-visible and non-fatal.
	ErrConfigurationMissing = errors.New("ticket system is not configured")

	// ErrPermissionDenied indicates the actor lacks the role or permission
	// required for the requested action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the referenced ticket, mapping or channel does
	// not exist. The operation is a no-op.
	ErrNotFound = errors.New("not found")

	// ErrNotATicket indicates the channel a ticket operation was invoked in
	// is not a ticket channel.
	ErrNotATicket = fmt.Errorf("%w: not a ticket channel", ErrNotFound)
)

// AlreadyOpenError is returned when a user attempts to open a ticket while
// already holding an open one in the same registry. ChannelID points the
// user at their existing ticket.
type AlreadyOpenError struct {
	ChannelID    string
	TicketNumber int
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("ticket already open in channel %s", e.ChannelID)
}

// ExternalError wraps a failed Discord API call. Where it blocks a
// multi-step operation, the whole operation aborts and the requester sees
// a generic failure.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("discord: %s: %s", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failed persistence operation. Always surfaced as an
// aborting error - the store is authoritative for every durable invariant.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func externalErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// userMessage converts a component failure into the short, user-facing
// message the router responds with. Every failure kind maps to exactly one
// message; unknown errors get a generic apology.
func userMessage(err error) string {
	var alreadyOpen *AlreadyOpenError
	switch {
	case errors.As(err, &alreadyOpen):
		return fmt.Sprintf(
			"You already have an open ticket here: <#%s>",
			alreadyOpen.ChannelID,
		)
	case errors.Is(err, ErrConfigurationMissing):
		return "Ticket system is not configured. Please ask an admin to set it up."
	case errors.Is(err, ErrPermissionDenied):
		return "You do not have permission to do that."
	case errors.Is(err, ErrNotATicket):
		return "This is not a ticket channel."
	case errors.Is(err, ErrNotFound):
		return "I couldn't find what you were looking for."
	default:
		return "Sorry, something went wrong!"
	}
}
