package wa

import "net/http"

// O provedor não mantém a REST estável entre versões: cada operação tem uma
// lista ordenada de formas candidatas e a primeira que responder vence. A
// negociação acontece uma vez por operação e fica em cache no client.

type operation string

const (
	opCreateInstance operation = "create_instance"
	opConnect        operation = "connect"
	opStatus         operation = "status"
	opFetchQR        operation = "fetch_qr"
	opSendText       operation = "send_text"
	opDeleteInstance operation = "delete_instance"
	opLogout         operation = "logout"
)

// endpointShape descreve uma forma candidata: método + template de caminho.
// O marcador {instance} é substituído pelo label da instância.
type endpointShape struct {
	method string
	path   string
}

var endpointCandidates = map[operation][]endpointShape{
	opCreateInstance: {
		{http.MethodPost, "/instance/create"},
		{http.MethodPost, "/manager/instance"},
	},
	opConnect: {
		{http.MethodGet, "/instance/connect/{instance}"},
		{http.MethodPost, "/instance/{instance}/connect"},
	},
	opStatus: {
		{http.MethodGet, "/instance/connectionState/{instance}"},
		{http.MethodGet, "/instance/{instance}/status"},
	},
	opFetchQR: {
		{http.MethodGet, "/instance/qrcode/{instance}"},
		{http.MethodGet, "/instance/{instance}/qr"},
	},
	opSendText: {
		{http.MethodPost, "/message/sendText/{instance}"},
		{http.MethodPost, "/instance/{instance}/message/text"},
	},
	opDeleteInstance: {
		{http.MethodDelete, "/instance/delete/{instance}"},
		{http.MethodDelete, "/instance/{instance}"},
	},
	opLogout: {
		{http.MethodDelete, "/instance/logout/{instance}"},
		{http.MethodPost, "/instance/{instance}/logout"},
	},
}
