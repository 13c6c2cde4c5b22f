package platform

// IPServerState mirrors the transport's own start/stop lifecycle as
// observed by the accessory server.
type IPServerState int

const (
	IPServerIdle IPServerState = iota
	IPServerRunning
	IPServerStopping
)

// IPServerEngine is the HTTP/JSON request-router collaborator. It is
// given the framed, decrypted request bytes by internal/ipsec and is
// responsible for routing and producing a response; this core only
// supplies the framing and the pairing/setup services layered on top.
type IPServerEngine interface {
	Init() error
	Deinit() error
	Start() error
	Stop() error
	GetState() IPServerState
	// RaiseEvent notifies all subscribed sessions that a characteristic
	// changed.
	RaiseEvent(characteristicIID uint64) error
	// RaiseEventOnSession notifies a single session, identified by an
	// opaque session key the engine assigned at connect time.
	RaiseEventOnSession(characteristicIID uint64, sessionKey string) error
}
