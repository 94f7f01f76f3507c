package numberprovider

import "context"

// PurchasedNumber holds the outcome of a successful number purchase.
type PurchasedNumber struct {
	PhoneNumber  string // E.164
	ProviderSID  string // provider-side identifier for the purchased number
	ProviderName string
}

// Adapter is the uniform interface over external number-provisioning
// backends. PurchaseNumber finds an available number, buys it, tags it with
// the given friendly label and configures its inbound-voice callback.
// Failures are reported through the domain provider error sentinels.
type Adapter interface {
	PurchaseNumber(ctx context.Context, friendlyLabel string) (*PurchasedNumber, error)
	GetName() string
}
