package session

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"fleetdash/cmd/security/token"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Store owns the process-wide session.
//
// All mutations are applied under one lock and are all-or-nothing from the
// caller's point of view. Network calls never run under the lock.
// Subscribers are notified outside the lock, in mutation order.
type Store struct {
	log     *slog.Logger
	cfg     Config
	gw      Gateway
	persist Persister
	clock   clockwork.Clock
	obs     Observer

	mu      sync.Mutex
	st      State
	epoch   uint64 // bumped on every clear and login; stale refresh results are dropped
	version uint64
	loading int // operations in flight; IsLoading mirrors loading > 0

	notifyMu     sync.Mutex
	lastNotified uint64

	subsMu  sync.Mutex
	subs    map[uint64]func(State)
	nextSub uint64

	refreshGroup singleflight.Group

	bg sync.WaitGroup
}

// Option configures optional Store dependencies.
type Option func(*Store)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the real clock (tests).
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.obs = o
		}
	}
}

// NewStore constructs a Store in the logged-out state. Call Load to rehydrate.
// A nil persister keeps the session in memory only.
func NewStore(cfg Config, gw Gateway, p Persister, opts ...Option) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	s := &Store{
		log:     slog.Default(),
		cfg:     cfg,
		gw:      gw,
		persist: p,
		clock:   clockwork.NewRealClock(),
		obs:     nopObserver{},
		subs:    make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load rehydrates the session from the persister. A missing snapshot leaves
// the logged-out state. A snapshot claiming authentication without an access
// token is discarded.
func (s *Store) Load(ctx context.Context) error {
	snap, ok, err := s.persist.Load(ctx)
	if err != nil {
		s.log.Warn("session.load.fail", "err", err)
		return err
	}
	if !ok {
		s.log.Debug("session.load.empty")
		return nil
	}

	if snap.IsAuthenticated && snap.AccessToken == "" {
		s.log.Warn("session.load.inconsistent", "reason", "authenticated_without_access_token")
		snap = Snapshot{}
	}

	s.update(true, func(st *State) {
		st.User = snap.User.clone()
		st.AccessToken = snap.AccessToken
		st.RefreshToken = snap.RefreshToken
		st.IsAuthenticated = snap.IsAuthenticated
	})

	s.log.Info("session.load.ok",
		"authenticated", snap.IsAuthenticated,
		"access_fp", token.Fingerprint(snap.AccessToken),
	)
	return nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Tokens returns the current token pair (empty strings when absent).
func (s *Store) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AccessToken, s.st.RefreshToken
}

// Subscribe registers fn for every session change and returns an idempotent
// unsubscribe function. fn may call Snapshot but must not block.
func (s *Store) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Login authenticates with a Telegram login-widget proof.
func (s *Store) Login(ctx context.Context, proof TelegramProof) error {
	id := proof.ID
	user := User{
		Username:   strings.TrimSpace(proof.Username),
		FirstName:  proof.FirstName,
		LastName:   proof.LastName,
		AuthMethod: AuthTelegram,
		TelegramID: &id,
	}
	if user.Username == "" {
		user.Username = "tg_" + strconv.FormatInt(proof.ID, 10)
	}

	return s.authenticate(ctx, OpLogin, "Login failed", user, func(ctx context.Context) (TokenPair, error) {
		return s.gw.Login(ctx, proof)
	})
}

// LoginWithPassword authenticates with username and password.
func (s *Store) LoginWithPassword(ctx context.Context, creds PasswordCredentials) error {
	user := User{
		Username:   strings.TrimSpace(creds.Username),
		AuthMethod: AuthPassword,
	}
	return s.authenticate(ctx, OpLoginPassword, "Login failed", user, func(ctx context.Context) (TokenPair, error) {
		return s.gw.LoginWithPassword(ctx, creds)
	})
}

// Register creates a password account and logs into it.
func (s *Store) Register(ctx context.Context, req RegisterRequest) error {
	user := User{
		Username:   strings.TrimSpace(req.Username),
		AuthMethod: AuthPassword,
	}
	return s.authenticate(ctx, OpRegister, "Registration failed", user, func(ctx context.Context) (TokenPair, error) {
		return s.gw.Register(ctx, req)
	})
}

func (s *Store) authenticate(
	ctx context.Context,
	op, fallback string,
	user User,
	call func(context.Context) (TokenPair, error),
) error {
	s.update(false, func(st *State) {
		s.startLoadingLocked(st)
		st.Error = ""
	})

	pair, err := call(ctx)
	if err == nil && pair.AccessToken == "" {
		err = ErrEmptyTokenPair
	}

	if err != nil {
		msg := messageFrom(err, fallback)
		s.update(true, func(st *State) {
			s.stopLoadingLocked(st)
			st.IsAuthenticated = false
			st.Error = msg
		})
		s.obs.LoginFinished(op, err)
		s.log.Info("session.auth.fail", "op", op, "msg", msg, "err", err)
		return &OperationError{Op: op, Message: msg, Err: err}
	}

	s.update(true, func(st *State) {
		u := user
		st.User = &u
		st.AccessToken = pair.AccessToken
		st.RefreshToken = pair.RefreshToken
		st.IsAuthenticated = true
		st.Error = ""
		s.stopLoadingLocked(st)
		s.epoch++
	})
	s.obs.LoginFinished(op, nil)
	s.log.Info("session.auth.ok",
		"op", op,
		"user", user.Username,
		"method", string(user.AuthMethod),
		"access_fp", token.Fingerprint(pair.AccessToken),
	)
	return nil
}

// Logout clears the session immediately. If an access token was held, the
// backend is notified in the background; that call's outcome never affects
// local state.
func (s *Store) Logout() {
	var access string
	s.update(true, func(st *State) {
		access = st.AccessToken
		s.clearLocked(st)
	})
	s.log.Info("session.logout", "had_token", access != "")

	if access == "" || s.gw == nil {
		return
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LogoutTimeout)
		defer cancel()

		if err := s.gw.Logout(ctx, access); err != nil {
			s.log.Debug("session.logout.notify.fail", "err", err)
		}
	}()
}

// SetTokens overwrites both tokens unconditionally. Refresh paths use
// RefreshTokens instead, which drops results for a session that has changed.
func (s *Store) SetTokens(access, refresh string) {
	s.update(true, func(st *State) {
		st.AccessToken = access
		st.RefreshToken = refresh
	})
	s.log.Debug("session.tokens.set", "access_fp", token.Fingerprint(access))
}

// ClearError resets the last error message.
func (s *Store) ClearError() {
	s.update(false, func(st *State) {
		st.Error = ""
	})
}

// Wait blocks until background logout notifications have finished.
func (s *Store) Wait() {
	s.bg.Wait()
}

// startLoadingLocked raises IsLoading for one more operation in flight.
func (s *Store) startLoadingLocked(st *State) {
	s.loading++
	st.IsLoading = true
}

// stopLoadingLocked ends one operation; IsLoading drops with the last one.
func (s *Store) stopLoadingLocked(st *State) {
	if s.loading > 0 {
		s.loading--
	}
	st.IsLoading = s.loading > 0
}

// clearLocked resets identity and credentials. Must be called with s.mu held.
func (s *Store) clearLocked(st *State) {
	st.User = nil
	st.AccessToken = ""
	st.RefreshToken = ""
	st.IsAuthenticated = false
	s.epoch++
}

// clearIfEpoch clears the session unless another clear happened since epoch
// was observed. It reports whether it cleared.
func (s *Store) clearIfEpoch(epoch uint64) bool {
	cleared := false
	s.update(true, func(st *State) {
		if s.epoch != epoch {
			return
		}
		s.clearLocked(st)
		cleared = true
	})
	return cleared
}

// update applies fn under the lock, optionally persists the durable part,
// and publishes the resulting state.
func (s *Store) update(persist bool, fn func(st *State)) {
	s.mu.Lock()
	before := s.st.clone()
	fn(&s.st)
	s.version++
	version := s.version
	snap := s.st.clone()
	if persist && !samePersisted(before, snap) {
		s.saveLocked(snap.persisted())
	}
	s.mu.Unlock()

	s.notify(version, snap)
}

// samePersisted compares the durable subset, including the user record.
func samePersisted(a, b State) bool {
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.IsAuthenticated == b.IsAuthenticated &&
		a.User.equal(b.User)
}

// saveLocked writes the snapshot. Errors are logged, never surfaced.
func (s *Store) saveLocked(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()

	if err := s.persist.Save(ctx, snap); err != nil {
		s.log.Warn("session.persist.fail", "err", err)
	}
}

func (s *Store) notify(version uint64, st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	// A newer state may already have been delivered by a concurrent mutation.
	if version <= s.lastNotified {
		return
	}
	s.lastNotified = version

	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}
