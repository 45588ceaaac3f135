package session

import "context"

// AuthMethod records how the operator authenticated.
type AuthMethod string

const (
	// AuthTelegram is a Telegram login-widget session.
	AuthTelegram AuthMethod = "telegram"
	// AuthPassword is a username/password session.
	AuthPassword AuthMethod = "password"
)

// User is the identity record exposed to the rest of the application.
type User struct {
	Username   string     `json:"username"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	AuthMethod AuthMethod `json:"authMethod"`
	TelegramID *int64     `json:"telegramId,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.TelegramID != nil {
		id := *u.TelegramID
		cp.TelegramID = &id
	}
	return &cp
}

func (u *User) equal(o *User) bool {
	if u == nil || o == nil {
		return u == o
	}
	if u.Username != o.Username || u.FirstName != o.FirstName ||
		u.LastName != o.LastName || u.AuthMethod != o.AuthMethod {
		return false
	}
	if u.TelegramID == nil || o.TelegramID == nil {
		return u.TelegramID == o.TelegramID
	}
	return *u.TelegramID == *o.TelegramID
}

// State is the full session as seen by readers. Empty strings mean absent.
type State struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

func (s State) clone() State {
	s.User = s.User.clone()
	return s
}

// persisted returns the durable subset of the state.
func (s State) persisted() Snapshot {
	return Snapshot{
		User:            s.User.clone(),
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

// Snapshot is the durable part of the session. IsLoading and Error are
// transient and never persisted.
type Snapshot struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// TokenPair is the gateway response shared by login, register and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TelegramProof is the signed payload produced by the Telegram login widget.
type TelegramProof struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// PasswordCredentials is the username/password login form.
type PasswordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest creates a new password account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Gateway is the slice of the backend API the store depends on.
//
// Errors returned by the login family should implement UserMessage() string
// when the backend provided a human-readable reason; errors carrying an HTTP
// status should implement StatusCode() int.
type Gateway interface {
	Login(ctx context.Context, proof TelegramProof) (TokenPair, error)
	LoginWithPassword(ctx context.Context, creds PasswordCredentials) (TokenPair, error)
	Register(ctx context.Context, req RegisterRequest) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}
