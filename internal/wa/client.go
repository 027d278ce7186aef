package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client é o wrapper tipado da REST do provedor WA.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
	log        *zap.Logger

	mu       sync.RWMutex
	resolved map[operation]endpointShape
}

func NewClient(baseURL, adminToken string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		resolved:   make(map[operation]endpointShape),
	}
}

func (c *Client) CreateInstance(ctx context.Context, label string) error {
	body := map[string]interface{}{
		"instanceName": label,
		"integration":  "WHATSAPP-BAILEYS",
	}
	_, err := c.do(ctx, opCreateInstance, "", body)
	return err
}

func (c *Client) Connect(ctx context.Context, label string) (*ConnectResult, error) {
	raw, err := c.do(ctx, opConnect, label, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Code   string `json:"code"`
		Base64 string `json:"base64"`
		QRCode struct {
			Code   string `json:"code"`
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("wa: connect: resposta malformada: %w", err)
	}
	result := &ConnectResult{PairingCode: payload.Code, QRBase64: payload.Base64}
	if result.PairingCode == "" {
		result.PairingCode = payload.QRCode.Code
	}
	if result.QRBase64 == "" {
		result.QRBase64 = payload.QRCode.Base64
	}
	if result.PairingCode == "" && result.QRBase64 == "" {
		return nil, fmt.Errorf("wa: connect: resposta sem material de pareamento")
	}
	return result, nil
}

func (c *Client) Status(ctx context.Context, label string) (*StatusResult, error) {
	raw, err := c.do(ctx, opStatus, label, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		State    string `json:"state"`
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("wa: status: resposta malformada: %w", err)
	}
	state := payload.State
	if state == "" {
		state = payload.Instance.State
	}
	if state == "" {
		return nil, fmt.Errorf("wa: status: resposta sem estado")
	}
	return &StatusResult{State: ConnectionState(strings.ToLower(state))}, nil
}

// FetchQR busca o QR vigente sem reiniciar o pareamento.
func (c *Client) FetchQR(ctx context.Context, label string) (*ConnectResult, error) {
	raw, err := c.do(ctx, opFetchQR, label, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Code   string `json:"code"`
		Base64 string `json:"base64"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("wa: qr: resposta malformada: %w", err)
	}
	return &ConnectResult{PairingCode: payload.Code, QRBase64: payload.Base64}, nil
}

func (c *Client) SendText(ctx context.Context, label, phone, text string) (*SendResult, error) {
	body := map[string]interface{}{
		"number": phone,
		"text":   text,
	}
	raw, err := c.do(ctx, opSendText, label, body)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("wa: send: resposta malformada: %w", err)
	}
	id := payload.Key.ID
	if id == "" {
		id = payload.MessageID
	}
	return &SendResult{MessageID: id}, nil
}

func (c *Client) Logout(ctx context.Context, label string) error {
	_, err := c.do(ctx, opLogout, label, nil)
	return err
}

func (c *Client) DeleteInstance(ctx context.Context, label string) error {
	_, err := c.do(ctx, opDeleteInstance, label, nil)
	return err
}

// do resolve a forma do endpoint e executa a chamada. 404/405 passa para a
// próxima candidata, qualquer outra resposta fixa a forma.
func (c *Client) do(ctx context.Context, op operation, label string, body interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	shape, ok := c.resolved[op]
	c.mu.RUnlock()

	if ok {
		return c.request(ctx, shape, label, body)
	}

	candidates := endpointCandidates[op]
	var lastErr error
	for _, candidate := range candidates {
		raw, err := c.request(ctx, candidate, label, body)
		if err != nil {
			var apiErr *RemoteApiError
			if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusMethodNotAllowed) {
				lastErr = err
				continue
			}
			c.remember(op, candidate)
			return nil, err
		}
		c.remember(op, candidate)
		return raw, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("wa: %s: nenhuma forma de endpoint candidata", op)
	}
	return nil, lastErr
}

func (c *Client) remember(op operation, shape endpointShape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.resolved[op]; !exists {
		c.resolved[op] = shape
		c.log.Debug("wa: forma de endpoint negociada",
			zap.String("operation", string(op)),
			zap.String("method", shape.method),
			zap.String("path", shape.path),
		)
	}
}

func (c *Client) request(ctx context.Context, shape endpointShape, label string, body interface{}) (json.RawMessage, error) {
	path := strings.ReplaceAll(shape.path, "{instance}", label)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("wa: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, shape.method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("wa: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("apikey", c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wa: %s %s: %w", shape.method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wa: ler resposta: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteApiError{Status: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}
	return respBody, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
