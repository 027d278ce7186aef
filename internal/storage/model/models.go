package model

import "time"

// InstanceStatus acompanha o ciclo de pareamento de uma instância no provedor WA.
type InstanceStatus string

const (
	InstanceStatusPendingQR    InstanceStatus = "pending_qr"
	InstanceStatusConnected    InstanceStatus = "connected"
	InstanceStatusDisconnected InstanceStatus = "disconnected"
	InstanceStatusError        InstanceStatus = "error"
)

// Credential guarda o OAuth do portal CRM de um tenant.
type Credential struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	PortalURL    string `json:"portalUrl"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	WebhookSecret string     `json:"-"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	Scopes        []string   `json:"scopes,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
}

// Expired informa se o access token já passou do prazo, com a folga dada.
func (c Credential) Expired(skew time.Duration, now time.Time) bool {
	return !c.ExpiresAt.After(now.Add(skew))
}

type Instance struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	Label      string         `json:"label"`
	Status     InstanceStatus `json:"status"`
	QRCode     string         `json:"-"`
	Secret     string         `json:"-"`
	TokenHash  string         `json:"-"`
	LastSeenAt *time.Time     `json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Binding amarra uma linha do CRM a uma instância WA (1:1 por desenho).
type Binding struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	LineID     string    `json:"lineId"`
	InstanceID string    `json:"instanceId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Contact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

type Conversation struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenantId"`
	InstanceID     string             `json:"instanceId"`
	ContactID      string             `json:"contactId"`
	CrmChatID      string             `json:"crmChatId,omitempty"`
	AssignedAgent  string             `json:"assignedAgent,omitempty"`
	Status         ConversationStatus `json:"status"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "in"
	DirectionOutbound MessageDirection = "out"
)

type DeliveryStatus string

const (
	DeliveryReceived  DeliveryStatus = "received"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

type Message struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenantId"`
	ConversationID string           `json:"conversationId"`
	Direction      MessageDirection `json:"direction"`
	Body           string           `json:"body"`
	MediaURL       string           `json:"mediaUrl,omitempty"`
	WaMessageID  string         `json:"waMessageId,omitempty"`
	CrmMessageID string         `json:"crmMessageId,omitempty"`
	Status       DeliveryStatus `json:"status"`
	FailReason   string         `json:"failReason,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// WebhookLog é append-only: todo payload recebido entra aqui com o veredito
// da assinatura.
type WebhookLog struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId,omitempty"`
	Source         string    `json:"source"` // "wa" ou "crm"
	InstanceLabel  string    `json:"instanceLabel,omitempty"`
	Payload        string    `json:"payload"`
	SignatureValid bool      `json:"signatureValid"`
	Secured        bool      `json:"secured"`
	CreatedAt      time.Time `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
