package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
)

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// settingEnabled reads a boolean setting. Missing keys are false.
func settingEnabled(ctx context.Context, st store.Store, key string) (bool, error) {
	v, err := st.Settings().GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	on, err := strconv.ParseBool(strings.TrimSpace(v))
	return on && err == nil, nil
}

// mapNotFound turns a store miss into the wire-level not_found error.
func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func emit(ctx context.Context, e audit.Emitter, ev domain.AuditEvent) {
	if e != nil {
		e.Emit(ctx, ev)
	}
}
