package cnst

const (
	// AppName is the application name
	AppName = "beacon"

	// DefaultGroup is the group every connection joins at registration
	DefaultGroup = "general"
)

// TransportKind identifies the delivery transport of a connection
type TransportKind string

const (
	// TransportWebSocket is the bidirectional socket channel
	TransportWebSocket TransportKind = "websocket"
	// TransportSSE is the one-way server-push stream
	TransportSSE TransportKind = "sse"
)
