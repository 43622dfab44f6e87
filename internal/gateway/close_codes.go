package gateway

// Application close codes sent by the gateway. Standard codes (1000, 1001) are
// defined by RFC 6455; the 4000 range is reserved for application use.
const (
	// CloseSocketNotOpen is sent when the heartbeat finds a registered socket that
	// is no longer writable.
	CloseSocketNotOpen = 4001

	// CloseInactivityTimeout is sent when a connection exceeds the offline threshold
	// without any inbound frame.
	CloseInactivityTimeout = 4400

	// CloseKeepaliveFailed is sent when a keepalive frame cannot be delivered, and
	// when verification finds a socket that is no longer writable.
	CloseKeepaliveFailed = 4401

	// CloseVerificationFailed is sent when verification finds the presence store and
	// the registry disagree about a connection.
	CloseVerificationFailed = 4403
)

// Close reasons paired with the codes above.
const (
	ReasonSocketNotOpen         = "socket_not_open"
	ReasonInactivityTimeout     = "inactivity_timeout"
	ReasonKeepaliveFailed       = "keepalive_failed"
	ReasonVerifySocketNotOpen   = "verification_socket_not_open"
	ReasonVerifyOffline         = "verification_d1_offline"
	ReasonVerifyIdentityChanged = "verification_identity_mismatch"
)
