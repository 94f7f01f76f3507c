package domain

import "errors"

var (
	// ErrPoolExhausted is the normal "no available number" outcome of a
	// pool claim. Callers branch on it to reach the purchase fallback.
	ErrPoolExhausted = errors.New("number pool exhausted")

	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateTenant indicates a tenant already exists for the same
	// payment reference or email.
	ErrDuplicateTenant = errors.New("tenant already exists")

	// ErrDuplicateSlug indicates only the derived slug collided; the tenant
	// itself is new and creation can be retried with a disambiguated slug.
	ErrDuplicateSlug = errors.New("tenant slug already taken")

	// ErrDuplicateNumber indicates the number is already present in the pool.
	ErrDuplicateNumber = errors.New("number already in pool")

	// ErrInvalidEvent indicates a webhook payload that failed boundary
	// validation; such events are acknowledged and dropped.
	ErrInvalidEvent = errors.New("invalid event payload")

	// Provider failures. All are recoverable at the orchestrator level and
	// trigger the next fallback stage.
	ErrProviderAuthFailed  = errors.New("provider authentication failed")
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrProviderNoInventory = errors.New("provider has no available numbers")
)
