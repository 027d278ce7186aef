package crm

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnparsablePayload indica um webhook cuja forma não foi reconhecida.
var ErrUnparsablePayload = errors.New("crm: payload de webhook não reconhecido")

func DecodeWebhook(rawBody []byte, contentType string) (CrmEvent, error) {
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		return decodeForm(rawBody)
	}
	return decodeJSON(rawBody)
}

type jsonWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Line       string `json:"LINE"`
		ChatID     string `json:"CHAT_ID"`
		MessageID  string `json:"MESSAGE_ID"`
		Message    string `json:"MESSAGE"`
		AuthorID   string `json:"AUTHOR_ID"`
		AuthorType string `json:"AUTHOR_TYPE"`
		AgentID    string `json:"AGENT_ID"`
		Files      []struct {
			Link string `json:"link"`
		} `json:"FILES"`
	} `json:"data"`
	Auth struct {
		Domain           string `json:"domain"`
		ApplicationToken string `json:"application_token"`
	} `json:"auth"`
}

func decodeJSON(rawBody []byte) (CrmEvent, error) {
	var wh jsonWebhook
	if err := json.Unmarshal(rawBody, &wh); err != nil {
		return CrmEvent{}, ErrUnparsablePayload
	}

	eventType, ok := mapEventName(wh.Event)
	if !ok {
		return CrmEvent{}, ErrUnparsablePayload
	}

	evt := CrmEvent{
		Type:       eventType,
		LineID:     wh.Data.Line,
		ChatID:     wh.Data.ChatID,
		MessageID:  wh.Data.MessageID,
		Text:       wh.Data.Message,
		AuthorID:   wh.Data.AuthorID,
		AuthorType: wh.Data.AuthorType,
		AgentID:    wh.Data.AgentID,
	}
	for _, f := range wh.Data.Files {
		if f.Link != "" {
			evt.Files = append(evt.Files, f.Link)
		}
	}
	return validateEvent(evt)
}

// decodeForm cobre os portais que entregam o evento como formulário com
// chaves indexadas (event=...&data[CHAT_ID]=...).
func decodeForm(rawBody []byte) (CrmEvent, error) {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return CrmEvent{}, ErrUnparsablePayload
	}

	eventType, ok := mapEventName(values.Get("event"))
	if !ok {
		return CrmEvent{}, ErrUnparsablePayload
	}

	evt := CrmEvent{
		Type:       eventType,
		LineID:     values.Get("data[LINE]"),
		ChatID:     values.Get("data[CHAT_ID]"),
		MessageID:  values.Get("data[MESSAGE_ID]"),
		Text:       values.Get("data[MESSAGE]"),
		AuthorID:   values.Get("data[AUTHOR_ID]"),
		AuthorType: values.Get("data[AUTHOR_TYPE]"),
		AgentID:    values.Get("data[AGENT_ID]"),
	}
	for i := 0; ; i++ {
		link := values.Get("data[FILES][" + strconv.Itoa(i) + "][link]")
		if link == "" {
			break
		}
		evt.Files = append(evt.Files, link)
	}
	return validateEvent(evt)
}

func mapEventName(name string) (CrmEventType, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ONIMCONNECTORMESSAGEADD":
		return CrmEventMessageAdd, true
	case "ONIMOPENLINESSESSIONCLOSE":
		return CrmEventSessionClose, true
	case "ONIMOPENLINESSESSIONTRANSFER":
		return CrmEventSessionTransfer, true
	}
	return "", false
}

func validateEvent(evt CrmEvent) (CrmEvent, error) {
	if evt.ChatID == "" {
		return CrmEvent{}, ErrUnparsablePayload
	}
	if evt.Type == CrmEventMessageAdd && evt.MessageID == "" && evt.Text == "" && len(evt.Files) == 0 {
		return CrmEvent{}, ErrUnparsablePayload
	}
	return evt, nil
}

