package models

import "errors"

// Domain errors. Every rejected operation surfaces one of these so callers
// can distinguish expected, actionable failures (sold out, cooldown, lost
// race) from programming errors.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrDealNotFound    = errors.New("deal not found")
	ErrUserNotFound    = errors.New("user not found")

	// ErrProductInactive means the product is disabled or outside its
	// active date window.
	ErrProductInactive = errors.New("product not active")

	// ErrSoldOut means total quantity or the daily limit is exhausted.
	ErrSoldOut = errors.New("product sold out")

	// ErrAlreadyHeld means the agent already has an active hold on the product.
	ErrAlreadyHeld = errors.New("agent already holds this product")

	// ErrCooldown means the agent let a hold on this product expire recently
	// and must wait before reserving it again.
	ErrCooldown = errors.New("cooldown active for this product")

	ErrNotOwner  = errors.New("hold does not belong to agent")
	ErrForbidden = errors.New("operation not permitted for actor")

	// ErrInvalidState covers operations not valid from the current status:
	// converting a non-active hold, a second extension, a disallowed deal
	// transition.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrHoldExpired means the hold's deadline has passed, whether or not
	// the sweep has flipped its status yet.
	ErrHoldExpired = errors.New("hold expired")

	// ErrTooEarly means an extension was requested outside the closing
	// window before expiry.
	ErrTooEarly = errors.New("too early to extend hold")

	ErrValidation = errors.New("missing or invalid field")

	// ErrConflict means a conditional update lost a race; the caller may
	// re-fetch state and retry.
	ErrConflict = errors.New("conflicting concurrent update")
)
