package crm

import (
	"errors"
	"net/url"
	"testing"
)

func TestDecodeWebhookJSON(t *testing.T) {
	body := []byte(`{
		"event": "ONIMCONNECTORMESSAGEADD",
		"data": {
			"LINE": "7",
			"CHAT_ID": "chat-1",
			"MESSAGE_ID": "m-1",
			"MESSAGE": "bom dia",
			"AUTHOR_ID": "42",
			"AUTHOR_TYPE": "operator",
			"FILES": [{"link": "https://portal/f/a.pdf"}, {"link": ""}]
		}
	}`)
	evt, err := DecodeWebhook(body, "application/json")
	if err != nil {
		t.Fatalf("DecodeWebhook: %v", err)
	}
	if evt.Type != CrmEventMessageAdd {
		t.Errorf("tipo = %q", evt.Type)
	}
	if evt.LineID != "7" || evt.ChatID != "chat-1" || evt.MessageID != "m-1" {
		t.Errorf("campos errados: %+v", evt)
	}
	if len(evt.Files) != 1 || evt.Files[0] != "https://portal/f/a.pdf" {
		t.Errorf("files = %v", evt.Files)
	}
	if !evt.FromAgent() {
		t.Error("mensagem de operador não reconhecida como de agente")
	}
}

func TestDecodeWebhookForm(t *testing.T) {
	values := url.Values{}
	values.Set("event", "onImConnectorMessageAdd")
	values.Set("data[LINE]", "7")
	values.Set("data[CHAT_ID]", "chat-1")
	values.Set("data[MESSAGE_ID]", "m-1")
	values.Set("data[MESSAGE]", "olá")
	values.Set("data[AUTHOR_TYPE]", "operator")
	values.Set("data[FILES][0][link]", "https://portal/f/a.pdf")
	values.Set("data[FILES][1][link]", "https://portal/f/b.pdf")

	evt, err := DecodeWebhook([]byte(values.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("DecodeWebhook: %v", err)
	}
	if evt.Type != CrmEventMessageAdd || evt.ChatID != "chat-1" {
		t.Errorf("evento errado: %+v", evt)
	}
	if len(evt.Files) != 2 {
		t.Errorf("files = %v", evt.Files)
	}
}

func TestDecodeWebhookSessionEvents(t *testing.T) {
	closeEvt, err := DecodeWebhook([]byte(`{"event":"ONIMOPENLINESSESSIONCLOSE","data":{"CHAT_ID":"chat-1"}}`), "application/json")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closeEvt.Type != CrmEventSessionClose {
		t.Errorf("tipo = %q", closeEvt.Type)
	}

	transferEvt, err := DecodeWebhook([]byte(`{"event":"ONIMOPENLINESSESSIONTRANSFER","data":{"CHAT_ID":"chat-1","AGENT_ID":"99"}}`), "application/json")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transferEvt.Type != CrmEventSessionTransfer || transferEvt.AgentID != "99" {
		t.Errorf("evento errado: %+v", transferEvt)
	}
}

func TestDecodeWebhookFailsClosed(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		contentType string
	}{
		{"json malformado", `{"event":`, "application/json"},
		{"evento desconhecido", `{"event":"ONALGOINESPERADO","data":{"CHAT_ID":"x"}}`, "application/json"},
		{"sem chat id", `{"event":"ONIMCONNECTORMESSAGEADD","data":{"MESSAGE":"oi"}}`, "application/json"},
		{"message add vazio", `{"event":"ONIMCONNECTORMESSAGEADD","data":{"CHAT_ID":"x"}}`, "application/json"},
		{"form sem evento", "data%5BCHAT_ID%5D=x", "application/x-www-form-urlencoded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeWebhook([]byte(tc.body), tc.contentType); !errors.Is(err, ErrUnparsablePayload) {
				t.Errorf("esperado ErrUnparsablePayload, veio %v", err)
			}
		})
	}
}

func TestFromAgentHeuristic(t *testing.T) {
	for _, authorType := range []string{"", "system", "bot", "connector"} {
		if (CrmEvent{AuthorType: authorType}).FromAgent() {
			t.Errorf("autor %q tratado como agente", authorType)
		}
	}
	for _, authorType := range []string{"operator", "user", "agent"} {
		if !(CrmEvent{AuthorType: authorType}).FromAgent() {
			t.Errorf("autor %q não tratado como agente", authorType)
		}
	}
}
