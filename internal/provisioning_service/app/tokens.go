package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/domain"
)

// issueAccessToken mints the dashboard access token returned from the
// signup path.
func issueAccessToken(tenant *domain.Tenant, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   tenant.ID.String(),
		"slug":  tenant.Slug,
		"email": tenant.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(expiry).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return token, nil
}
