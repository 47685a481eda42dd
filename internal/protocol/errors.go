package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Admission.
	ErrBadAction    = "E_BAD_ACTION"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrBackpressure = "E_BACKPRESSURE"
	ErrSlowClient   = "E_SLOW_CLIENT"
	ErrShutdown     = "E_SHUTDOWN"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadAction:       {},
	ErrRateLimit:       {},
	ErrBackpressure:    {},
	ErrSlowClient:      {},
	ErrShutdown:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
