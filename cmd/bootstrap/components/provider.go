package components

import (
	"context"
	"log/slog"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra/provider"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/commands"

	"go.uber.org/fx"
)

var ProviderModule = fx.Module("provider",
	fx.Provide(
		fx.Annotate(
			NewProviderRegistry,
			fx.As(new(commands.ProviderRegistry)),
		),
	),
)

// NewProviderRegistry wires one provider per configured channel. Unwired
// channels stay unregistered; the registry serves them an always-failing
// provider so their jobs fail through the normal state machine.
func NewProviderRegistry(cfg config.Config) (*provider.Registry, error) {
	var providers []commands.Provider

	if cfg.Provider.EmailMode == "ses" {
		ses, err := provider.NewSESFromEnv(context.Background(), cfg.Provider.AWSRegion, cfg.Provider.EmailFrom)
		if err != nil {
			return nil, err
		}
		providers = append(providers, ses)
		slog.Info("email provider configured", "provider", "ses")
	}

	if cfg.Provider.SMSWebhookURL != "" {
		providers = append(providers,
			provider.NewWebhook("sms-webhook", job.ChannelSMS, cfg.Provider.SMSWebhookURL, cfg.Provider.WebhookTimeout))
		slog.Info("sms provider configured", "provider", "sms-webhook")
	}

	if cfg.Provider.PushGatewayURL != "" {
		providers = append(providers,
			provider.NewWebhook("push-gateway", job.ChannelPush, cfg.Provider.PushGatewayURL, cfg.Provider.WebhookTimeout))
		slog.Info("push provider configured", "provider", "push-gateway")
	}

	return provider.NewRegistry(providers...), nil
}
