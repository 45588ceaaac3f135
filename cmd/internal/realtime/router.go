package realtime

import (
	"sync"

	v1 "fleetdash/shared/contracts/realtime/v1"
)

// Cache keys invalidated by push events.
const (
	KeyNodes     = "nodes"
	KeyNodeStats = "node-stats"
	KeyUsers     = "users"
	KeyUserStats = "user-stats"
	KeyAuditLogs = "audit-logs"
	KeyScripts   = "scripts"
	KeyBilling   = "billing"
	KeyMail      = "mail"
	KeyStats     = "stats"
)

// DefaultTable returns the event type -> cache keys table.
func DefaultTable() map[string][]string {
	return map[string][]string{
		v1.TypeNodeStatus:    {KeyNodes, KeyNodeStats},
		v1.TypeNodeUpdate:    {KeyNodes, KeyNodeStats},
		v1.TypeUserUpdate:    {KeyUsers},
		v1.TypeUserCreated:   {KeyUsers},
		v1.TypeUserDeleted:   {KeyUsers},
		v1.TypeUserTraffic:   {KeyUsers, KeyUserStats},
		v1.TypeAuditEvent:    {KeyAuditLogs},
		v1.TypeScriptUpdate:  {KeyScripts},
		v1.TypeBillingUpdate: {KeyBilling},
		v1.TypeMailEvent:     {KeyMail},
		v1.TypeSystemStats:   {KeyStats},
	}
}

// Router maps event types to cache-invalidation keys.
// It can be extended at runtime without touching the connection logic.
type Router struct {
	mu    sync.RWMutex
	table map[string][]string
}

// NewRouter returns a Router preloaded with DefaultTable.
func NewRouter() *Router {
	return &Router{table: DefaultTable()}
}

// Register sets the keys for eventType, replacing any previous mapping.
// Registering no keys removes the mapping.
func (r *Router) Register(eventType string, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(keys) == 0 {
		delete(r.table, eventType)
		return
	}
	r.table[eventType] = append([]string(nil), keys...)
}

// Keys returns the keys for eventType, or nil for unknown types.
func (r *Router) Keys(eventType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.table[eventType]
	if len(keys) == 0 {
		return nil
	}
	return append([]string(nil), keys...)
}
