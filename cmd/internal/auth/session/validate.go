package session

import (
	"context"
	"errors"

	"fleetdash/cmd/security/token"
)

// Outcome is the result of a ValidateSession call.
type Outcome string

const (
	// OutcomeSkipped means the store was not authenticated; nothing was done.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeValid means the access token is still good; no network call was made.
	OutcomeValid Outcome = "valid"
	// OutcomeRefreshed means a refresh succeeded and new tokens were stored.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeCleared means the session was cleared (missing or expired
	// credentials, or a failed refresh).
	OutcomeCleared Outcome = "cleared"
)

// ValidateSession checks the stored credentials and refreshes or clears them.
//
// It is idempotent and safe to call repeatedly. Failures are reflected in the
// state only; nothing is returned to the caller except the outcome. Concurrent
// callers holding the same refresh token share one refresh request.
func (s *Store) ValidateSession(ctx context.Context) Outcome {
	out := s.validate(ctx)
	s.obs.SessionValidated(out)
	return out
}

func (s *Store) validate(ctx context.Context) Outcome {
	s.mu.Lock()
	authenticated := s.st.IsAuthenticated
	access, refresh := s.st.AccessToken, s.st.RefreshToken
	epoch := s.epoch
	s.mu.Unlock()

	if !authenticated {
		return OutcomeSkipped
	}

	if access == "" && refresh == "" {
		s.clearFor(epoch, "no_tokens")
		return OutcomeCleared
	}

	now := s.clock.Now()
	if token.ValidFor(access, now, s.cfg.ExpiryMargin) {
		return OutcomeValid
	}

	if refresh == "" {
		s.clearFor(epoch, "no_refresh_token")
		return OutcomeCleared
	}
	if !token.ValidFor(refresh, now, s.cfg.ExpiryMargin) {
		s.clearFor(epoch, "refresh_expired")
		return OutcomeCleared
	}

	switch _, err := s.refresh(ctx, epoch, refresh); {
	case errors.Is(err, ErrSessionChanged):
		return OutcomeSkipped
	case err != nil:
		return OutcomeCleared
	}
	return OutcomeRefreshed
}

// RefreshTokens returns an access token that replaces stale. When the stored
// access token already differs from stale it is returned without a network
// call; otherwise the refresh goes through the same deduplicated path as
// ValidateSession. A failed refresh clears the session. A result that arrives
// after the session was cleared or replaced is dropped and ErrSessionChanged
// is returned.
func (s *Store) RefreshTokens(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	access, refresh := s.st.AccessToken, s.st.RefreshToken
	epoch := s.epoch
	s.mu.Unlock()

	if access != "" && access != stale {
		return access, nil
	}
	if refresh == "" {
		s.clearFor(epoch, "no_refresh_token")
		return "", ErrNoRefreshToken
	}

	pair, err := s.refresh(ctx, epoch, refresh)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// refresh exchanges refreshToken once for every concurrent caller holding it
// and applies the result unless the session changed since epoch. A failure
// clears the session. isLoading stays raised for the duration of the call.
func (s *Store) refresh(ctx context.Context, epoch uint64, refreshToken string) (TokenPair, error) {
	s.update(false, s.startLoadingLocked)
	defer s.update(false, s.stopLoadingLocked)

	v, err, shared := s.refreshGroup.Do(refreshToken, func() (any, error) {
		s.mu.Lock()
		current := TokenPair{AccessToken: s.st.AccessToken, RefreshToken: s.st.RefreshToken}
		changed := s.epoch != epoch
		s.mu.Unlock()

		if changed {
			return TokenPair{}, ErrSessionChanged
		}
		if current.AccessToken != "" && current.RefreshToken != refreshToken {
			// Rotated by a refresh that finished before this one started.
			return current, nil
		}

		pair, err := s.exchange(ctx, refreshToken)
		if err != nil {
			cause := refreshFailureCause(err)
			s.log.Warn("session.refresh.fail", "cause", cause, "err", err)
			s.clearFor(epoch, "refresh_"+cause)
			return TokenPair{}, err
		}
		if !s.applyRefresh(epoch, pair) {
			s.log.Info("session.refresh.discard", "reason", "session_changed")
			return TokenPair{}, ErrSessionChanged
		}
		s.log.Info("session.refresh.ok", "access_fp", token.Fingerprint(pair.AccessToken))
		return pair, nil
	})
	if shared {
		s.log.Debug("session.refresh.shared")
	}
	if err != nil {
		return TokenPair{}, err
	}
	return v.(TokenPair), nil
}

// exchange performs the network call and reports its result to the observer.
func (s *Store) exchange(ctx context.Context, refreshToken string) (TokenPair, error) {
	if s.gw == nil {
		return TokenPair{}, ErrGatewayUnavailable
	}

	pair, err := s.gw.Refresh(ctx, refreshToken)
	if err == nil && pair.AccessToken == "" {
		err = ErrEmptyTokenPair
	}
	if err != nil {
		s.obs.RefreshFinished(refreshFailureCause(err))
		return TokenPair{}, err
	}
	s.obs.RefreshFinished(RefreshOK)
	return pair, nil
}

// applyRefresh stores pair unless the session was cleared or replaced since
// epoch. It reports whether the pair was stored.
func (s *Store) applyRefresh(epoch uint64, pair TokenPair) bool {
	applied := false
	s.update(true, func(st *State) {
		if s.epoch != epoch {
			return
		}
		st.AccessToken = pair.AccessToken
		st.RefreshToken = pair.RefreshToken
		st.IsAuthenticated = true
		applied = true
	})
	return applied
}

func (s *Store) clearFor(epoch uint64, reason string) {
	if s.clearIfEpoch(epoch) {
		s.log.Info("session.cleared", "reason", reason)
	}
}
