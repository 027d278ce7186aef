package wa

import "fmt"

type RemoteApiError struct {
	Status  int
	Message string
}

func (e *RemoteApiError) Error() string {
	return fmt.Sprintf("wa: status %d: %s", e.Status, e.Message)
}

func (e *RemoteApiError) Transient() bool {
	return e.Status >= 500 || e.Status == 429
}

type ConnectionState string

const (
	StateOpen       ConnectionState = "open"
	StateConnecting ConnectionState = "connecting"
	StateClosed     ConnectionState = "close"
)

type StatusResult struct {
	State ConnectionState
}

// ConnectResult carrega o material de pareamento devolvido pelo connect.
type ConnectResult struct {
	PairingCode string
	QRBase64    string
}

type SendResult struct {
	MessageID string
}

type WaEventType string

const (
	WaEventMessage          WaEventType = "message"
	WaEventConnectionUpdate WaEventType = "connection_update"
	WaEventQRUpdate         WaEventType = "qr_update"
)

type WaEvent struct {
	Type          WaEventType
	InstanceLabel string
	MessageID     string
	FromJID       string
	FromPhone     string
	PushName      string
	Text          string
	MediaURL      string
	State         ConnectionState
	QR            string
	FromMe        bool
}
