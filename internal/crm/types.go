package crm

import "fmt"

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	Domain       string `json:"domain"`
}

type RemoteApiError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Status      int    `json:"-"`
}

func (e *RemoteApiError) Error() string {
	return fmt.Sprintf("crm: %s (%s)", e.Code, e.Description)
}

func (e *RemoteApiError) AuthExpired() bool {
	switch e.Code {
	case "expired_token", "invalid_token", "NO_AUTH_FOUND":
		return true
	}
	return e.Status == 401
}

// Transient marca erros que o CRM devolve sob carga e vale repetir.
func (e *RemoteApiError) Transient() bool {
	switch e.Code {
	case "QUERY_LIMIT_EXCEEDED", "OPERATION_TIME_LIMIT", "INTERNAL_SERVER_ERROR":
		return true
	}
	return e.Status >= 500
}

type SendResult struct {
	CrmMessageID string
	CrmChatID    string
}

type Line struct {
	ID   string `json:"ID"`
	Name string `json:"NAME"`
}

type CrmEventType string

const (
	CrmEventMessageAdd      CrmEventType = "message_add"
	CrmEventSessionClose    CrmEventType = "session_close"
	CrmEventSessionTransfer CrmEventType = "session_transfer"
)

type CrmEvent struct {
	Type      CrmEventType
	TenantID  string
	LineID    string
	ChatID    string
	MessageID string
	Text      string
	AuthorID  string
	AuthorType string
	AgentID    string
	Files      []string
}

func (e CrmEvent) FromAgent() bool {
	switch e.AuthorType {
	case "", "system", "bot", "connector":
		return false
	}
	return true
}
