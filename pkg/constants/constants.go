package constants

type contextKey string

const (
	TxKey     contextKey = "tx"
	PoolKey   contextKey = "pool"
	TenantKey contextKey = "tenant"
	LoggerKey contextKey = "logger"
	ActorKey  contextKey = "actor"
	// RequestIDKey carries the inbound request id used for audit correlation.
	RequestIDKey contextKey = "request_id"
)
