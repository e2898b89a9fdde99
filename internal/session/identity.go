package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/concord-chat/livechat/internal/models"
)

// ErrMalformedToken is returned when a bearer token cannot be decoded
var ErrMalformedToken = errors.New("session: malformed token")

// Identity is the claim set carried by the access token. The client
// never verifies the signature; the backend owns that.
type Identity struct {
	Subject   string         `mapstructure:"sub" json:"sub"`
	Role      string         `mapstructure:"role" json:"role,omitempty"`
	Email     string         `mapstructure:"email" json:"email,omitempty"`
	IssuedAt  int64          `mapstructure:"iat" json:"iat,omitempty"`
	ExpiresAt int64          `mapstructure:"exp" json:"exp,omitempty"`
	Claims    map[string]any `mapstructure:"-" json:"-"`
}

// UserID returns the id used to address the real-time endpoint
func (i *Identity) UserID() string {
	if i == nil {
		return ""
	}
	return i.Subject
}

// IsAdmin returns true for roles that may use the admin console
func (i *Identity) IsAdmin() bool {
	return i != nil && models.IsAdminRole(i.Role)
}

// Expired reports whether the exp claim is set and in the past
func (i *Identity) Expired(now time.Time) bool {
	if i == nil || i.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= i.ExpiresAt
}

// DecodeToken reads the claims of a JWT without verifying it
func DecodeToken(token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var identity Identity
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &identity,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(claims)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	identity.Claims = claims

	return &identity, nil
}
