package cnst

// Event types emitted by the core
const (
	// EventConnected is the on-connect confirmation sent to a new connection
	EventConnected = "connected"
	// EventPong is the reply to an inbound ping
	EventPong = "pong"
	// EventRoomJoined acknowledges a join-room request
	EventRoomJoined = "room-joined"
	// EventRoomLeft acknowledges a leave-room request
	EventRoomLeft = "room-left"
	// EventSubscribed acknowledges a subscribe request
	EventSubscribed = "subscribed"
	// EventMessage is a chat message fanned out to a room
	EventMessage = "message"
	// EventHeartbeat is the periodic server heartbeat
	EventHeartbeat = "heartbeat"
	// EventConnectionUpdate reports a connection count change
	EventConnectionUpdate = "connection-update"
	// EventUserConnected reports a connection whose identity has been resolved
	EventUserConnected = "user-connected"
	// EventPresence reports an active/inactive transition
	EventPresence = "presence"
	// EventUserActive reports a user coming back from inactivity
	EventUserActive = "user-active"
)

// Inbound message types on the duplex channel
const (
	InboundPing        = "ping"
	InboundJoinRoom    = "join-room"
	InboundLeaveRoom   = "leave-room"
	InboundSubscribe   = "subscribe"
	InboundSendMessage = "send-message"
)

// Connection-update subtypes
const (
	UpdateNewConnection = "new-connection"
	UpdateDisconnection = "disconnection"
)
