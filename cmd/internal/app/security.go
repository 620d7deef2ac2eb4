package app

import (
	"errors"
	"fmt"
	"net/url"

	"memberdesk/cmd/internal/claimapi"
	"memberdesk/cmd/security/token"
)

// minTokenHMACKeyBytes is the key length required when HMAC hashing is mandatory.
const minTokenHMACKeyBytes = 32

// ValidateSecurityConfig fails startup when the configured security policy
// cannot be honored by this runtime.
func ValidateSecurityConfig(cfg Config) error {
	u, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("security policy: MEMBERDESK_PUBLIC_BASE_URL must be an absolute URL, got %q", cfg.PublicBaseURL)
	}

	if len(cfg.StaffJWTSecret) < claimapi.MinStaffKeyBytes {
		return fmt.Errorf("security policy: MEMBERDESK_STAFF_JWT_SECRET must be at least %d bytes", claimapi.MinStaffKeyBytes)
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(minTokenHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: MEMBERDESK_REQUIRE_TOKEN_HMAC=true but MEMBERDESK_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: MEMBERDESK_REQUIRE_TOKEN_HMAC=true but MEMBERDESK_TOKEN_HMAC_KEY is too short (min %d bytes)", minTokenHMACKeyBytes)
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: MEMBERDESK_REQUIRE_TOKEN_HMAC=true but the secret hasher is not in HMAC mode")
	}
	return nil
}
