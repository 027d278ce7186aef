package wa

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparsablePayload indica um webhook cuja forma não foi reconhecida.
var ErrUnparsablePayload = errors.New("wa: payload de webhook não reconhecido")

// rawWebhook cobre as formas que o provedor emite entre versões. Campos de
// texto aparecem em lugares diferentes conforme o tipo da mensagem; o decode
// escolhe um único valor canônico e rejeita o que não reconhecer.
type rawWebhook struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			ID        string `json:"id"`
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			ImageMessage struct {
				URL     string `json:"url"`
				Caption string `json:"caption"`
			} `json:"imageMessage"`
			DocumentMessage struct {
				URL string `json:"url"`
			} `json:"documentMessage"`
		} `json:"message"`
		State  string `json:"state"`
		QRCode struct {
			Code   string `json:"code"`
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	} `json:"data"`
}

func DecodeWebhook(rawBody []byte) (WaEvent, error) {
	var wh rawWebhook
	if err := json.Unmarshal(rawBody, &wh); err != nil {
		return WaEvent{}, ErrUnparsablePayload
	}
	if wh.Instance == "" {
		return WaEvent{}, ErrUnparsablePayload
	}

	switch normalizeEventName(wh.Event) {
	case "messages.upsert":
		evt := WaEvent{
			Type:          WaEventMessage,
			InstanceLabel: wh.Instance,
			MessageID:     wh.Data.Key.ID,
			FromJID:       wh.Data.Key.RemoteJID,
			FromPhone:     phoneFromJID(wh.Data.Key.RemoteJID),
			PushName:      wh.Data.PushName,
			FromMe:        wh.Data.Key.FromMe,
		}
		evt.Text = wh.Data.Message.Conversation
		if evt.Text == "" {
			evt.Text = wh.Data.Message.ExtendedTextMessage.Text
		}
		if evt.Text == "" {
			evt.Text = wh.Data.Message.ImageMessage.Caption
		}
		evt.MediaURL = wh.Data.Message.ImageMessage.URL
		if evt.MediaURL == "" {
			evt.MediaURL = wh.Data.Message.DocumentMessage.URL
		}
		if evt.FromPhone == "" {
			return WaEvent{}, ErrUnparsablePayload
		}
		if evt.Text == "" && evt.MediaURL == "" {
			return WaEvent{}, ErrUnparsablePayload
		}
		return evt, nil

	case "connection.update":
		if wh.Data.State == "" {
			return WaEvent{}, ErrUnparsablePayload
		}
		return WaEvent{
			Type:          WaEventConnectionUpdate,
			InstanceLabel: wh.Instance,
			State:         ConnectionState(strings.ToLower(wh.Data.State)),
		}, nil

	case "qrcode.updated":
		qr := wh.Data.QRCode.Base64
		if qr == "" {
			qr = wh.Data.QRCode.Code
		}
		if qr == "" {
			return WaEvent{}, ErrUnparsablePayload
		}
		return WaEvent{
			Type:          WaEventQRUpdate,
			InstanceLabel: wh.Instance,
			QR:            qr,
		}, nil
	}

	return WaEvent{}, ErrUnparsablePayload
}

func normalizeEventName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	// Algumas versões emitem MESSAGES_UPSERT, outras messages.upsert.
	return strings.ReplaceAll(name, "_", ".")
}

func phoneFromJID(jid string) string {
	if jid == "" {
		return ""
	}
	at := strings.IndexByte(jid, '@')
	if at > 0 {
		jid = jid[:at]
	}
	if i := strings.IndexByte(jid, ':'); i > 0 {
		jid = jid[:i]
	}
	for _, r := range jid {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return jid
}
