package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentEvent(t *testing.T) {
	t.Run("ValidSuccess", func(t *testing.T) {
		raw := []byte(`{"success": true, "reference_code": "PAY-1", "payer_email": "a@b.co", "payer_name": "Acme", "amount": 499.0, "transaction_id": "TX-1"}`)
		ev, err := ParsePaymentEvent(raw)
		require.NoError(t, err)
		assert.True(t, ev.Success)
		assert.Equal(t, "PAY-1", ev.ReferenceCode)
		assert.Equal(t, "a@b.co", ev.PayerEmail)
	})

	t.Run("FailureNeedsNoReference", func(t *testing.T) {
		ev, err := ParsePaymentEvent([]byte(`{"success": false}`))
		require.NoError(t, err)
		assert.False(t, ev.Success)
	})

	t.Run("SuccessMissingReference", func(t *testing.T) {
		_, err := ParsePaymentEvent([]byte(`{"success": true, "payer_email": "a@b.co"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("SuccessMissingEmail", func(t *testing.T) {
		_, err := ParsePaymentEvent([]byte(`{"success": true, "reference_code": "PAY-1"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("NotJSON", func(t *testing.T) {
		_, err := ParsePaymentEvent([]byte(`{broken`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestParseSignupRequest(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		req, err := ParseSignupRequest([]byte(`{"business_name": "Acme Kebap", "email": "a@b.co", "plan_id": "starter"}`))
		require.NoError(t, err)
		assert.Equal(t, "Acme Kebap", req.BusinessName)
	})

	t.Run("MissingBusinessName", func(t *testing.T) {
		_, err := ParseSignupRequest([]byte(`{"email": "a@b.co"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("MalformedEmail", func(t *testing.T) {
		_, err := ParseSignupRequest([]byte(`{"business_name": "Acme", "email": "nope"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestParseInboundCallEvent(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		ev, err := ParseInboundCallEvent([]byte(`{"called_number": "+908501111111", "caller_number": "+905321234567", "call_sid": "CALL-1"}`))
		require.NoError(t, err)
		assert.Equal(t, "+908501111111", ev.CalledNumber)
	})

	t.Run("MissingCalledNumber", func(t *testing.T) {
		_, err := ParseInboundCallEvent([]byte(`{"caller_number": "+905321234567"}`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Kebap", "acme-kebap"},
		{"  Güven Oto Servis  ", "guven-oto-servis"},
		{"Çağrı Çiğ Köfte", "cagri-cig-kofte"},
		{"İstanbul Şarküteri", "istanbul-sarkuteri"},
		{"Cafe---Latte", "cafe-latte"},
		{"42 Pizza!", "42-pizza"},
		{"---", ""},
		{"北京烤鸭", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "Slugify(%q)", tc.in)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+908501111111", "+908501111111"},
		{"908501111111", "+908501111111"},
		{"08501111111", "+908501111111"},
		{"8501111111", "+908501111111"},
		{"0850 111 11 11", "+908501111111"},
		{"+90 (850) 111-11-11", "+908501111111"},
		{"  90 850 111 11 11  ", "+908501111111"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePhoneNumber(tc.in), "NormalizePhoneNumber(%q)", tc.in)
	}
}
