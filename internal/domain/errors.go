package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound             = errors.New("not found")
	ErrUnknownOpType        = errors.New("unknown operation type")
	ErrOffline              = errors.New("offline: write deferred to pending queue")
	ErrAutoProcessorRunning = errors.New("auto processor already started")
	ErrConfirmationMismatch = errors.New("confirmation text does not match")
	ErrUnknownCollection    = errors.New("unknown collection")

	ErrInvalidID        = errors.New("id must not be empty")
	ErrIDMismatch       = errors.New("body id does not match the id in the path")
	ErrInvalidName      = errors.New("name must be between 1 and 120 characters")
	ErrInvalidClientRef = errors.New("clientId must not be empty")
	ErrInvalidCowRef    = errors.New("cowId must not be empty")
	ErrInvalidDate      = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidLiters    = errors.New("liters must be greater than zero")
	ErrInvalidPrice     = errors.New("price per liter must be greater than zero")
	ErrInvalidCalfSex   = errors.New("calfSex must be female, male, or unknown")
)
