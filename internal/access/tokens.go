package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleProfessional Role = "professional"
	RolePatient      Role = "patient"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a logged-in user. Professionals carry the consultation
// session id; patients carry the record and access code they logged in with.
type Claims struct {
	jwt.RegisteredClaims
	Role       Role   `json:"role"`
	SessionID  string `json:"sid,omitempty"`
	RecordID   string `json:"rid,omitempty"`
	AccessCode string `json:"code,omitempty"`
}

type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs c with HS256, filling in its registered claims.
func (t *Tokens) Issue(c Claims) (string, error) {
	now := t.now()
	c.ID = uuid.NewString()
	c.Subject = string(c.Role)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch claims.Role {
	case RoleProfessional, RolePatient:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
