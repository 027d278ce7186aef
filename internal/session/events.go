package session

import "github.com/zapline/zapline/internal/storage/model"

// StatusEvent é uma transição pedida por algum transporte (poller, webhook do
// provedor, socket). Todos alimentam a mesma máquina pelo mesmo canal.
type StatusEvent struct {
	InstanceID string
	Status     model.InstanceStatus
	// QR acompanha transições para pending_qr; ignorado nas demais.
	QR string
}
