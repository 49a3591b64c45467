package providers

// ConnectionStatus tracks whether the transport is usable. Each
// provider instance transitions Disconnected→Connected at most once,
// and Connected→Disconnected at most once; a disconnected provider
// never reconnects — the host must construct a replacement.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
)

// ConnectInfo is the payload of EventConnect.
type ConnectInfo struct {
	// ChainID is the chain identifier cached at connect time, empty
	// when not yet known.
	ChainID string `json:"chainId"`
}

// DisconnectReason is the payload of EventDisconnect and EventClose.
// It distinguishes a session ended by the remote peer from a local
// transport failure.
type DisconnectReason struct {
	// Remote is true when the remote peer ended the session, false for
	// a local transport failure or shutdown.
	Remote bool
	// Err is the underlying transport error, nil for a clean local
	// shutdown.
	Err error
}

func (r DisconnectReason) String() string {
	switch {
	case r.Remote:
		return "remote peer ended the session"
	case r.Err != nil:
		return "local transport failure: " + r.Err.Error()
	default:
		return "local shutdown"
	}
}

// chainLoadingSentinel is the transient value the wallet reports for
// chainId and networkVersion while it is still resolving the network.
// It means "unknown", not a distinct chain.
const chainLoadingSentinel = "loading"

// Snapshot is a peer-pushed partial or full copy of the wallet's
// externally-tracked state. Only the fields present in the push are
// applied.
type Snapshot struct {
	Accounts       []string `json:"accounts,omitempty"`
	ChainID        *string  `json:"chainId,omitempty"`
	NetworkVersion *string  `json:"networkVersion,omitempty"`
	IsUnlocked     *bool    `json:"isUnlocked,omitempty"`
}
