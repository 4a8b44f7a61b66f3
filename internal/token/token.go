// Package token implements the Token Service: minting, validating,
// and single-use consumption of capability tokens that authorize one
// download of one file through one tunnel.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/models"
	"github.com/dropwire/dropwire/internal/state"
)

// ErrTokenInvalid is the single opaque outcome every failure mode
// (bad signature, expired, malformed, already consumed) collapses
// into at the public boundary.
var ErrTokenInvalid = errors.New("token: invalid")

// MinTTL is the lower bound of the ttl_seconds clamp applied by Mint;
// the upper bound is the Service's MAX_TUNNEL_SECONDS.
const MinTTL = 60 * time.Second

// claims is the JWT payload minted for a capability token.
type claims struct {
	TokenID   string `json:"token_id"`
	FilePath  string `json:"file_path"`
	TunnelID  string `json:"tunnel_id"`
	jwt.RegisteredClaims
}

// Claims is the validated, public view of a token's payload returned
// by ValidateAndConsume and Peek.
type Claims struct {
	FilePath string
	TunnelID string
}

// Service mints and validates capability tokens, signing them with a
// process-wide HMAC-SHA256 secret and tracking single-use consumption
// in the state store.
type Service struct {
	secret []byte
	store  state.Store
	maxTTL time.Duration
}

// NewService builds a Token Service. secret must be at least 32 bytes
// (enforced by internal/config.Config.Validate before this is called).
func NewService(secret []byte, store state.Store, maxTunnelSeconds int) *Service {
	return &Service{secret: secret, store: store, maxTTL: time.Duration(maxTunnelSeconds) * time.Second}
}

func (s *Service) clamp(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > s.maxTTL {
		return s.maxTTL
	}
	return ttl
}

// Mint produces a signed, opaque token attesting {token_id, file_path,
// tunnel_id, issued_at, expires_at}. ttl is clamped to [60s,
// MAX_TUNNEL_SECONDS] rather than rejected out of range (see
// DESIGN.md Open Question decisions).
func (s *Service) Mint(ctx context.Context, filePath, tunnelID string, ttl time.Duration) (string, error) {
	ttl = s.clamp(ttl)
	now := time.Now().UTC()
	tokenID := uuid.NewString()
	expiresAt := now.Add(ttl)

	c := claims{
		TokenID:  tokenID,
		FilePath: filePath,
		TunnelID: tunnelID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := jwtToken.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	record := models.TokenRecord{
		TokenID:   tokenID,
		FilePath:  filePath,
		TunnelID:  tunnelID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Consumed:  false,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("token: marshal record: %w", err)
	}
	if err := s.store.Set(ctx, state.TokenKey(tokenID), raw, ttl); err != nil {
		return "", fmt.Errorf("token: persist record: %w", err)
	}

	return signed, nil
}

// parse verifies signature and expiry only, returning the decoded
// claims without touching the state store.
func (s *Service) parse(tokenStr string) (*claims, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return c, nil
}

// Peek verifies signature and expiry only; used by the courtesy-page
// renderer to display metadata without burning the token.
func (s *Service) Peek(_ context.Context, tokenStr string) (Claims, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	return Claims{FilePath: c.FilePath, TunnelID: c.TunnelID}, nil
}

// ValidateAndConsume verifies signature, checks expiry, loads the
// token record, and atomically transitions consumed false→true via a
// CAS against the state store. Any failure — bad signature, expired,
// malformed, already consumed, record missing — collapses to
// ErrTokenInvalid.
func (s *Service) ValidateAndConsume(ctx context.Context, tokenStr string) (Claims, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}

	raw, err := s.store.Get(ctx, state.TokenKey(c.TokenID))
	if err != nil {
		logging.GetGlobalLogger().Warn("token: record missing for token_id=%s: %v", c.TokenID, err)
		return Claims{}, ErrTokenInvalid
	}

	var record models.TokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		logging.GetGlobalLogger().Error("token: malformed record for token_id=%s: %v", c.TokenID, err)
		return Claims{}, ErrTokenInvalid
	}
	if record.Consumed {
		return Claims{}, ErrTokenInvalid
	}

	record.Consumed = true
	newRaw, err := json.Marshal(record)
	if err != nil {
		return Claims{}, fmt.Errorf("token: marshal record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	if err := s.store.CompareAndSet(ctx, state.TokenKey(c.TokenID), raw, newRaw, ttl); err != nil {
		// Either a CAS race with a concurrent consumption, or the
		// record vanished out from under us (TTL expiry). Either way
		// the token is no longer usable.
		return Claims{}, ErrTokenInvalid
	}

	return Claims{FilePath: record.FilePath, TunnelID: record.TunnelID}, nil
}

// Sweep evicts already-consumed token records ahead of their natural
// TTL expiry, run periodically off TOKEN_SWEEP_CRON. Unconsumed tokens
// are left for the store's own TTL to reclaim.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	keys, err := s.store.ListByPrefix(ctx, state.TokenKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("token: sweep list: %w", err)
	}

	swept := 0
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var record models.TokenRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if !record.Consumed {
			continue
		}
		if err := s.store.Delete(ctx, key); err == nil {
			swept++
		}
	}
	return swept, nil
}
