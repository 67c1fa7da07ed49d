package errs

// Logical failures surface to the checkout caller as the saga's failure reason.
// Everything else is retried or reported as an internal error.
var (
	ErrInsufficientStock    = New("insufficient stock")
	ErrReservationExpired   = New("reservation expired")
	ErrPromotionInvalid     = New("promotion invalid")
	ErrConcurrencyExhausted = New("concurrency retry budget exhausted")
	ErrSKUNotFound          = New("sku not found")

	// Transient, retried inside the reservation manager.
	ErrVersionConflict = New("version conflict")
	ErrLockTimeout     = New("lock timeout")

	ErrSagaNotFound            = New("saga not found")
	ErrStaleStep               = New("stale saga step")
	ErrCancelNotAllowed        = New("cancel not allowed in current state")
	ErrInvalidCheckout         = New("invalid checkout request")
	ErrDuplicateCheckout       = New("idempotency key reused with a different request")
	ErrInvalidSignature        = New("invalid callback signature")
	ErrReservationNotFound     = New("reservation not found")
	ErrInvalidAdjustment       = New("invalid stock adjustment")
	ErrSKUExists               = New("sku already provisioned")
	ErrDatabaseOperationFailed = New("database operation failed")
)
