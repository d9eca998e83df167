package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SessionCookieName is the cookie inspected by the websocket handshake,
// matching what browser clients receive on login.
const SessionCookieName = "jwt"

// SessionTokenQueryParam is the query-string fallback for the websocket
// handshake when cookies are not available.
const SessionTokenQueryParam = "token"

// Realtime event names pushed to connected sessions.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)
