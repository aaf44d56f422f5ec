package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDispatcher delivers events to the notification service's internal
// endpoint, authenticating with the shared service token.
type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL, serviceToken string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   serviceToken,
		client:  &http.Client{Timeout: timeout},
	}
}

type dispatchRequest struct {
	UserID  string    `json:"userId"`
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type dispatchDetail struct {
	From         string `json:"from"`
	InvitationID string `json:"invitationId,omitempty"`
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, e Event) error {
	detail, err := json.Marshal(dispatchDetail{From: e.SenderID, InvitationID: e.InvitationID})
	if err != nil {
		return err
	}
	body, err := json.Marshal(dispatchRequest{UserID: e.RecipientID, Type: e.Type, Message: string(detail)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/internal/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-service-token", d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch notification: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
