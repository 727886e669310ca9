package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/pkg/logger"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

// Postmark sends through the Postmark transactional API.
type Postmark struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewPostmark creates a Postmark sender.
func NewPostmark(token string) *Postmark {
	return &Postmark{
		token:   token,
		baseURL: postmarkBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type postmarkMessage struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HTMLBody      string `json:"HtmlBody"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send delivers one email.
func (p *Postmark) Send(ctx context.Context, from, to, subject, html string) error {
	messageID := uuid.New().String()

	body, err := json.Marshal(postmarkMessage{
		From:          from,
		To:            to,
		Subject:       subject,
		HTMLBody:      html,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("marshal postmark message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return &engine.TransportError{Provider: "postmark", Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var pmResp postmarkResponse
		msg := string(raw)
		if json.Unmarshal(raw, &pmResp) == nil && pmResp.Message != "" {
			msg = fmt.Sprintf("%s (code %d)", pmResp.Message, pmResp.ErrorCode)
		}
		return &engine.TransportError{
			Provider: "postmark",
			Msg:      fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
		}
	}

	logger.Info("email sent", "provider", "postmark", "message_id", messageID, "to", to)
	return nil
}
