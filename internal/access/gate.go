// Package access guards the two entry points: the nutritionist's shared
// secret and the patient's access code.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"nutri-practice/internal/record"
)

var (
	ErrInvalidCredentials = errors.New("invalid code")
	ErrTooManyAttempts    = errors.New("too many attempts, try again later")
	ErrNotConfigured      = errors.New("professional secret is not configured")
)

type PatientLookup interface {
	FindByAccessCode(ctx context.Context, code string) (*record.PatientRecord, error)
}

type SessionStarter interface {
	NewSessionID() string
}

type Gate struct {
	secretHash []byte
	patients   PatientLookup
	sessions   SessionStarter
	tokens     *Tokens
	limiter    *Limiter
	log        zerolog.Logger
	now        func() time.Time
}

func NewGate(secretHash string, patients PatientLookup, sessions SessionStarter, tokens *Tokens, limiter *Limiter, log zerolog.Logger) *Gate {
	return &Gate{
		secretHash: []byte(secretHash),
		patients:   patients,
		sessions:   sessions,
		tokens:     tokens,
		limiter:    limiter,
		log:        log.With().Str("component", "access").Logger(),
		now:        time.Now,
	}
}

// HashSecret returns the bcrypt hash to configure for secret.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

func (g *Gate) audit(kind, client string, err error) {
	ev := g.log.Info()
	if err != nil {
		ev = g.log.Warn().Err(err)
	}
	ev.Str("login", kind).Str("client", client).Bool("ok", err == nil).Msg("login attempt")
}

// ProfessionalLogin checks secret against the configured hash and starts a
// consultation session.
func (g *Gate) ProfessionalLogin(ctx context.Context, client, secret string) (token string, err error) {
	defer func() { g.audit("professional", client, err) }()

	if len(g.secretHash) == 0 {
		return "", ErrNotConfigured
	}
	key := "professional|" + client
	if !g.limiter.Allow(key, g.now()) {
		return "", ErrTooManyAttempts
	}
	if bcrypt.CompareHashAndPassword(g.secretHash, []byte(secret)) != nil {
		return "", ErrInvalidCredentials
	}
	g.limiter.Forget(key)

	return g.tokens.Issue(Claims{Role: RoleProfessional, SessionID: g.sessions.NewSessionID()})
}

// PatientLogin resolves an access code to the patient's newest record. Every
// failure other than throttling reports ErrInvalidCredentials.
func (g *Gate) PatientLogin(ctx context.Context, client, code string) (token string, rec *record.PatientRecord, err error) {
	defer func() { g.audit("patient", client, err) }()

	key := "patient|" + client
	if !g.limiter.Allow(key, g.now()) {
		return "", nil, ErrTooManyAttempts
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil, ErrInvalidCredentials
	}
	rec, lookupErr := g.patients.FindByAccessCode(ctx, code)
	if lookupErr != nil {
		if !errors.Is(lookupErr, record.ErrNotFound) {
			g.log.Error().Err(lookupErr).Msg("patient lookup failed")
		}
		return "", nil, ErrInvalidCredentials
	}
	g.limiter.Forget(key)

	token, err = g.tokens.Issue(Claims{Role: RolePatient, RecordID: rec.ID, AccessCode: rec.AccessCode})
	if err != nil {
		return "", nil, err
	}
	return token, rec, nil
}
