//go:build unit

package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra/provider"
	"notify-dispatch/internal/usecase/commands"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput(ch job.Channel) commands.DispatchInput {
	subject := "Order update"
	return commands.DispatchInput{
		JobID:      uuid.New(),
		BusinessID: "biz-001",
		Channel:    ch,
		Audience:   "customer@example.com",
		Subject:    &subject,
		Message:    "Your order has shipped",
		Metadata:   map[string]any{"campaign": "spring-sale"},
		Attempt:    1,
	}
}

func TestRegistry_ForChannel(t *testing.T) {
	sms := provider.NewWebhook("twilio-hook", job.ChannelSMS, "http://sms.invalid", time.Second)
	reg := provider.NewRegistry(sms)

	assert.Equal(t, "twilio-hook", reg.ForChannel(job.ChannelSMS).Name())

	t.Run("unconfigured channel falls back to a rejecting provider", func(t *testing.T) {
		p := reg.ForChannel(job.ChannelPush)
		require.Equal(t, "unavailable", p.Name())

		res, err := p.Send(context.Background(), sampleInput(job.ChannelPush))
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		require.NotNil(t, res.Detail)
		assert.Equal(t, "no provider configured for channel push", *res.Detail)
	})
}

func TestWebhook_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("2xx with delivery id is accepted", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"deliveryId": "dlv-42"})
		}))
		defer srv.Close()

		w := provider.NewWebhook("sms-webhook", job.ChannelSMS, srv.URL, time.Second)
		in := sampleInput(job.ChannelSMS)

		res, err := w.Send(ctx, in)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		require.NotNil(t, res.ExternalID)
		assert.Equal(t, "dlv-42", *res.ExternalID)

		assert.Equal(t, in.JobID.String(), got["jobId"])
		assert.Equal(t, "biz-001", got["businessId"])
		assert.Equal(t, "sms", got["channel"])
		assert.Equal(t, "Your order has shipped", got["message"])
		assert.Equal(t, float64(1), got["attempt"])
	})

	t.Run("2xx with empty body is accepted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		res, err := provider.NewWebhook("push-gateway", job.ChannelPush, srv.URL, time.Second).
			Send(ctx, sampleInput(job.ChannelPush))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Nil(t, res.ExternalID)
	})

	t.Run("non-2xx is a rejection, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "carrier unavailable"})
		}))
		defer srv.Close()

		res, err := provider.NewWebhook("sms-webhook", job.ChannelSMS, srv.URL, time.Second).
			Send(ctx, sampleInput(job.ChannelSMS))
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		require.NotNil(t, res.Detail)
		assert.Equal(t, "carrier unavailable", *res.Detail)
	})

	t.Run("non-2xx without detail reports the status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		res, err := provider.NewWebhook("sms-webhook", job.ChannelSMS, srv.URL, time.Second).
			Send(ctx, sampleInput(job.ChannelSMS))
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		require.NotNil(t, res.Detail)
		assert.Equal(t, "sms-webhook webhook returned status 500", *res.Detail)
	})

	t.Run("unreachable endpoint is a transport error", func(t *testing.T) {
		w := provider.NewWebhook("sms-webhook", job.ChannelSMS, "http://127.0.0.1:1", 200*time.Millisecond)
		_, err := w.Send(ctx, sampleInput(job.ChannelSMS))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sms-webhook webhook unreachable")
	})
}

type fakeSESClient struct {
	lastInput *sesv2.SendEmailInput
	err       error
}

func (f *fakeSESClient) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-abc")}, nil
}

func TestSES_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a sender address", func(t *testing.T) {
		_, err := provider.NewSES(&fakeSESClient{}, "")
		require.Error(t, err)
	})

	t.Run("maps the dispatch input onto the SES request", func(t *testing.T) {
		client := &fakeSESClient{}
		ses, err := provider.NewSES(client, "no-reply@example.com")
		require.NoError(t, err)

		res, err := ses.Send(ctx, sampleInput(job.ChannelEmail))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		require.NotNil(t, res.ExternalID)
		assert.Equal(t, "msg-abc", *res.ExternalID)

		require.NotNil(t, client.lastInput)
		assert.Equal(t, "no-reply@example.com", *client.lastInput.FromEmailAddress)
		assert.Equal(t, []string{"customer@example.com"}, client.lastInput.Destination.ToAddresses)
		assert.Equal(t, "Order update", *client.lastInput.Content.Simple.Subject.Data)
		assert.Equal(t, "Your order has shipped", *client.lastInput.Content.Simple.Body.Text.Data)
	})

	t.Run("missing subject falls back to a default", func(t *testing.T) {
		client := &fakeSESClient{}
		ses, err := provider.NewSES(client, "no-reply@example.com")
		require.NoError(t, err)

		in := sampleInput(job.ChannelEmail)
		in.Subject = nil
		_, err = ses.Send(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "Notification", *client.lastInput.Content.Simple.Subject.Data)
	})

	t.Run("client errors surface as send errors", func(t *testing.T) {
		ses, err := provider.NewSES(&fakeSESClient{err: assert.AnError}, "no-reply@example.com")
		require.NoError(t, err)

		_, err = ses.Send(ctx, sampleInput(job.ChannelEmail))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SES send failed")
	})
}
