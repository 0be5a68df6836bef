package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/pkg/errs"
	"notify-dispatch/internal/usecase/commands"
)

// Webhook forwards deliveries to an external HTTP gateway. SMS and push
// both ride on it; only the endpoint and channel differ.
type Webhook struct {
	name    string
	channel job.Channel
	url     string
	client  *http.Client
}

func NewWebhook(name string, channel job.Channel, url string, timeout time.Duration) *Webhook {
	return &Webhook{
		name:    name,
		channel: channel,
		url:     url,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string         { return w.name }
func (w *Webhook) Channel() job.Channel { return w.channel }

type webhookPayload struct {
	JobID      string         `json:"jobId"`
	BusinessID string         `json:"businessId"`
	Channel    string         `json:"channel"`
	Audience   string         `json:"audience"`
	Subject    *string        `json:"subject,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Attempt    int            `json:"attempt"`
}

type webhookResponse struct {
	DeliveryID *string `json:"deliveryId"`
	Detail     *string `json:"detail"`
}

func (w *Webhook) Send(ctx context.Context, in commands.DispatchInput) (commands.SendResult, error) {
	body, err := json.Marshal(webhookPayload{
		JobID:      in.JobID.String(),
		BusinessID: in.BusinessID,
		Channel:    in.Channel.String(),
		Audience:   in.Audience,
		Subject:    in.Subject,
		Message:    in.Message,
		Metadata:   in.Metadata,
		Attempt:    in.Attempt,
	})
	if err != nil {
		return commands.SendResult{}, errs.Wrap(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return commands.SendResult{}, errs.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return commands.SendResult{}, errs.Wrap(err, fmt.Sprintf("%s webhook unreachable", w.name))
	}
	defer resp.Body.Close()

	// Response body is optional; ignore decode failures on both paths.
	var decoded webhookResponse
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := fmt.Sprintf("%s webhook returned status %d", w.name, resp.StatusCode)
		if decoded.Detail != nil && *decoded.Detail != "" {
			detail = *decoded.Detail
		}
		return commands.SendResult{Accepted: false, Detail: &detail}, nil
	}

	return commands.SendResult{
		Accepted:   true,
		ExternalID: decoded.DeliveryID,
		Detail:     decoded.Detail,
	}, nil
}
