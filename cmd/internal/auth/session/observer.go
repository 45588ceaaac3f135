package session

// Login family operation names, as reported to observers and logs.
const (
	OpLogin         = "login"
	OpLoginPassword = "login_password"
	OpRegister      = "register"
)

// Refresh outcomes reported to observers.
const (
	RefreshOK        = "ok"
	RefreshRejected  = "rejected"
	RefreshTransport = "transport"
)

// Observer receives session lifecycle signals (metrics).
// Implementations must be cheap and must not call back into the Store.
type Observer interface {
	LoginFinished(op string, err error)
	SessionValidated(outcome Outcome)
	RefreshFinished(result string)
}

type nopObserver struct{}

func (nopObserver) LoginFinished(string, error) {}
func (nopObserver) SessionValidated(Outcome)    {}
func (nopObserver) RefreshFinished(string)      {}
