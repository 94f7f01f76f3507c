package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook payloads are modeled as a small tagged union of known event
// shapes, validated at the boundary. Anything that fails validation is
// acknowledged and dropped instead of propagating untyped maps inward.

// PaymentEvent is the payload delivered by the payment gateway webhook.
type PaymentEvent struct {
	Success       bool    `json:"success"`
	ReferenceCode string  `json:"reference_code"`
	PayerEmail    string  `json:"payer_email"`
	PayerName     string  `json:"payer_name"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
}

// SignupRequest is the payload of a self-service signup.
type SignupRequest struct {
	BusinessName string `json:"business_name"`
	Email        string `json:"email"`
	Website      string `json:"website,omitempty"`
	Industry     string `json:"industry,omitempty"`
	PlanID       string `json:"plan_id"`
}

// InboundCallEvent is the payload Verimor posts when a call arrives on a
// provisioned number.
type InboundCallEvent struct {
	CalledNumber string `json:"called_number"`
	CallerNumber string `json:"caller_number"`
	CallSID      string `json:"call_sid"`
	Secret       string `json:"secret,omitempty"`
}

// ParsePaymentEvent decodes and validates a payment webhook body.
func ParsePaymentEvent(raw []byte) (*PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	// Failed payments carry no reference requirements; they are acked as-is.
	if !ev.Success {
		return &ev, nil
	}
	if strings.TrimSpace(ev.ReferenceCode) == "" {
		return nil, fmt.Errorf("%w: missing reference_code", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.PayerEmail) == "" {
		return nil, fmt.Errorf("%w: missing payer_email", ErrInvalidEvent)
	}
	return &ev, nil
}

// ParseSignupRequest decodes and validates a signup body.
func ParseSignupRequest(raw []byte) (*SignupRequest, error) {
	var req SignupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(req.BusinessName) == "" {
		return nil, fmt.Errorf("%w: missing business_name", ErrInvalidEvent)
	}
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: missing or malformed email", ErrInvalidEvent)
	}
	return &req, nil
}

// ParseInboundCallEvent decodes and validates an inbound-call webhook body.
func ParseInboundCallEvent(raw []byte) (*InboundCallEvent, error) {
	var ev InboundCallEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(ev.CalledNumber) == "" {
		return nil, fmt.Errorf("%w: missing called_number", ErrInvalidEvent)
	}
	return &ev, nil
}

// slugTransliterations maps Turkish letters onto their ASCII slug forms
// before the lowercase pass, so "Çağrı" slugs to "cagri" instead of losing
// the characters entirely.
var slugTransliterations = strings.NewReplacer(
	"ç", "c", "Ç", "c",
	"ğ", "g", "Ğ", "g",
	"ı", "i", "İ", "i",
	"ö", "o", "Ö", "o",
	"ş", "s", "Ş", "s",
	"ü", "u", "Ü", "u",
)

// Slugify derives a URL-safe tenant slug from a display name.
func Slugify(name string) string {
	var b strings.Builder
	prevDash := true // trim leading dashes
	name = slugTransliterations.Replace(strings.TrimSpace(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
