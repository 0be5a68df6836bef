package provider

import (
	"context"
	"fmt"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/usecase/commands"
)

// Unavailable rejects every delivery on a channel nothing is wired for.
type Unavailable struct {
	channel job.Channel
}

func NewUnavailable(ch job.Channel) *Unavailable {
	return &Unavailable{channel: ch}
}

func (u *Unavailable) Name() string         { return "unavailable" }
func (u *Unavailable) Channel() job.Channel { return u.channel }

func (u *Unavailable) Send(_ context.Context, _ commands.DispatchInput) (commands.SendResult, error) {
	detail := fmt.Sprintf("no provider configured for channel %s", u.channel)
	return commands.SendResult{Accepted: false, Detail: &detail}, nil
}
