package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage/model"
)

type Client struct {
	refresher     *Refresher
	httpClient    *http.Client
	connectorCode string
	connectorName string
	log           *zap.Logger
}

func NewClient(refresher *Refresher, connectorCode, connectorName string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		refresher:     refresher,
		httpClient:    &http.Client{Timeout: timeout},
		connectorCode: connectorCode,
		connectorName: connectorName,
		log:           log,
	}
}

type InboundMessage struct {
	LineID    string
	ChatID    string
	UserPhone string
	UserName  string
	Text      string
	FileURL   string
	MessageID string
}

func (c *Client) RegisterConnector(ctx context.Context, cred model.Credential) error {
	params := map[string]interface{}{
		"ID":   c.connectorCode,
		"NAME": c.connectorName,
	}
	_, err := c.call(ctx, cred, "imconnector.register", params)
	return err
}

func (c *Client) PublishConnectorData(ctx context.Context, cred model.Credential, lineID, instanceLabel string) error {
	params := map[string]interface{}{
		"CONNECTOR": c.connectorCode,
		"LINE":      lineID,
		"DATA": map[string]interface{}{
			"id":   instanceLabel,
			"name": c.connectorName,
		},
	}
	_, err := c.call(ctx, cred, "imconnector.connector.data.set", params)
	return err
}

func (c *Client) ActivateLine(ctx context.Context, cred model.Credential, lineID string, active bool) error {
	activeFlag := 0
	if active {
		activeFlag = 1
	}
	params := map[string]interface{}{
		"CONNECTOR": c.connectorCode,
		"LINE":      lineID,
		"ACTIVE":    activeFlag,
	}
	_, err := c.call(ctx, cred, "imconnector.activate", params)
	return err
}

func (c *Client) ListLines(ctx context.Context, cred model.Credential) ([]Line, error) {
	raw, err := c.call(ctx, cred, "imopenlines.config.list.get", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("crm: decodificar linhas: %w", err)
	}
	return lines, nil
}

func (c *Client) SendMessage(ctx context.Context, cred model.Credential, msg InboundMessage) (*SendResult, error) {
	chat := msg.ChatID
	if chat == "" {
		chat = msg.UserPhone
	}
	params := map[string]interface{}{
		"CONNECTOR": c.connectorCode,
		"LINE":      msg.LineID,
		"MESSAGES": []map[string]interface{}{
			{
				"user": map[string]interface{}{
					"id":    msg.UserPhone,
					"name":  msg.UserName,
					"phone": msg.UserPhone,
				},
				"chat": map[string]interface{}{
					"id": chat,
				},
				"message": map[string]interface{}{
					"id":    msg.MessageID,
					"text":  msg.Text,
					"files": fileList(msg.FileURL),
				},
			},
		},
	}

	raw, err := c.call(ctx, cred, "imconnector.send.messages", params)
	if err != nil {
		return nil, err
	}

	result := &SendResult{}
	var envelope struct {
		Data struct {
			Result []struct {
				Chat    struct{ ID json.Number } `json:"chat"`
				Message struct{ ID json.Number } `json:"message"`
			} `json:"RESULT"`
		} `json:"DATA"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data.Result) > 0 {
		result.CrmChatID = envelope.Data.Result[0].Chat.ID.String()
		result.CrmMessageID = envelope.Data.Result[0].Message.ID.String()
	}
	return result, nil
}

func (c *Client) BindEvents(ctx context.Context, cred model.Credential, handlerURL string) error {
	for _, event := range []string{
		"OnImConnectorMessageAdd",
		"OnImOpenLinesSessionClose",
		"OnImOpenLinesSessionTransfer",
	} {
		params := map[string]interface{}{
			"event":   event,
			"handler": handlerURL,
		}
		if _, err := c.call(ctx, cred, "event.bind", params); err != nil {
			return fmt.Errorf("crm: bind %s: %w", event, err)
		}
	}
	return nil
}

func (c *Client) UnbindEvents(ctx context.Context, cred model.Credential, handlerURL string) error {
	params := map[string]interface{}{
		"handler": handlerURL,
	}
	_, err := c.call(ctx, cred, "event.unbind", params)
	return err
}

// call executa um método REST; rejeição de auth força um refresh e repete
// uma única vez.
func (c *Client) call(ctx context.Context, cred model.Credential, method string, params map[string]interface{}) (json.RawMessage, error) {
	fresh, err := c.refresher.EnsureFresh(ctx, cred)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return nil, err
	}

	raw, err := c.doCall(ctx, fresh, method, params)
	if err == nil {
		return raw, nil
	}

	var apiErr *RemoteApiError
	if errors.As(err, &apiErr) && apiErr.AuthExpired() {
		c.log.Info("crm: auth rejeitada, renovando e repetindo",
			zap.String("method", method),
			zap.String("tenant", cred.TenantID),
		)
		refreshed, refreshErr := c.refresher.ForceRefresh(ctx, fresh)
		if refreshErr != nil {
			return nil, err
		}
		return c.doCall(ctx, refreshed, method, params)
	}

	return nil, err
}

func (c *Client) doCall(ctx context.Context, cred model.Credential, method string, params map[string]interface{}) (json.RawMessage, error) {
	endpoint := strings.TrimRight(cred.PortalURL, "/") + "/rest/" + method
	if cred.AccessToken != "" {
		endpoint += "?auth=" + cred.AccessToken
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("crm: marshal params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("crm: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: %s: ler resposta: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &RemoteApiError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
			apiErr.Description = truncate(string(respBody), 200)
		}
		return nil, apiErr
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
		Desc   string          `json:"error_description"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("crm: %s: resposta malformada: %w", method, err)
	}
	if envelope.Error != "" {
		return nil, &RemoteApiError{Code: envelope.Error, Description: envelope.Desc, Status: resp.StatusCode}
	}
	return envelope.Result, nil
}

func fileList(url string) []map[string]string {
	if url == "" {
		return nil
	}
	return []map[string]string{{"url": url}}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
