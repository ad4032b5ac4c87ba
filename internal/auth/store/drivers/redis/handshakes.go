// Package redis stores pending external handshakes in Redis so several
// instances can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
)

// HandshakeStore implements store.Handshakes. Keys expire on their own after
// domain.HandshakeMaxAge, so there is nothing for housekeeping to purge.
type HandshakeStore struct {
	rdb    goredis.Cmdable
	prefix string
}

var _ store.Handshakes = (*HandshakeStore)(nil)

func NewHandshakeStore(rdb goredis.Cmdable, prefix string) *HandshakeStore {
	if prefix == "" {
		prefix = "marquee:handshake:"
	}
	return &HandshakeStore{rdb: rdb, prefix: prefix}
}

type handshakeRecord struct {
	State          string `json:"state"`
	Provider       string `json:"provider"`
	Purpose        string `json:"purpose"`
	BoundAccountID string `json:"bound_account_id,omitempty"`
	Nonce          string `json:"nonce,omitempty"`
	PKCEVerifier   string `json:"pkce_verifier,omitempty"`
	RedirectNext   string `json:"redirect_next,omitempty"`
	IssuedAt       int64  `json:"issued_at"`
}

func (s *HandshakeStore) SaveHandshake(ctx context.Context, h domain.HandshakeState) error {
	raw, err := json.Marshal(handshakeRecord{
		State:          h.State,
		Provider:       h.Provider,
		Purpose:        string(h.Purpose),
		BoundAccountID: h.BoundAccountID,
		Nonce:          h.Nonce,
		PKCEVerifier:   h.PKCEVerifier,
		RedirectNext:   h.RedirectNext,
		IssuedAt:       h.IssuedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+h.State, raw, domain.HandshakeMaxAge).Result()
	if err != nil {
		return fmt.Errorf("save handshake: %w", err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

// ConsumeHandshake uses GETDEL so two callbacks racing on one state cannot
// both succeed.
func (s *HandshakeStore) ConsumeHandshake(ctx context.Context, state string) (domain.HandshakeState, error) {
	raw, err := s.rdb.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.HandshakeState{}, store.ErrNotFound
	}
	if err != nil {
		return domain.HandshakeState{}, fmt.Errorf("consume handshake: %w", err)
	}

	var rec handshakeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.HandshakeState{}, fmt.Errorf("decode handshake: %w", err)
	}
	return domain.HandshakeState{
		State:          rec.State,
		Provider:       rec.Provider,
		Purpose:        domain.HandshakePurpose(rec.Purpose),
		BoundAccountID: rec.BoundAccountID,
		Nonce:          rec.Nonce,
		PKCEVerifier:   rec.PKCEVerifier,
		RedirectNext:   rec.RedirectNext,
		IssuedAt:       time.UnixMilli(rec.IssuedAt),
	}, nil
}

func (s *HandshakeStore) DeleteExpiredHandshakes(context.Context, time.Time) (int64, error) {
	return 0, nil
}
