package domain

import "errors"

// Conflict outcomes: expected business rejections, not failures. A retry of a
// submission that already landed reports one of these instead of double-applying.
var (
	// ErrAlreadyAnswered is returned when a (player, question) pair already has an answer.
	ErrAlreadyAnswered = errors.New("you already answered this question")
	// ErrAlreadyPurchased is returned when a player re-buys the same product.
	ErrAlreadyPurchased = errors.New("you already purchased this product")
	// ErrOutOfStock is returned when a product has no remaining units.
	ErrOutOfStock = errors.New("out of stock")
	// ErrInsufficientCoins is returned when a purchase would drive the balance negative.
	ErrInsufficientCoins = errors.New("not enough coins")
	// ErrProductUnavailable is returned when a purchase lands outside the
	// product's availability window.
	ErrProductUnavailable = errors.New("product not available")
)

// NotFound outcomes: the caller passed a stale id.
var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrTeamNotFound     = errors.New("team not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrProductNotFound  = errors.New("product not found")
)

// Validation outcomes, rejected before anything is written.
var (
	// ErrInvalidQuestion indicates a question that violates the 2-4 choice or
	// answer-index invariants at creation time.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidInput covers other malformed admin payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// IsInvalid reports whether err is a validation rejection.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidQuestion) || errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err is an expected business rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyAnswered) ||
		errors.Is(err, ErrAlreadyPurchased) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrInsufficientCoins) ||
		errors.Is(err, ErrProductUnavailable)
}

// IsNotFound reports whether err indicates a missing referenced entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
