package provider

import (
	"context"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/pkg/errs"
	"notify-dispatch/internal/usecase/commands"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const defaultEmailSubject = "Notification"

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES delivers email jobs through Amazon SES v2.
type SES struct {
	client sesAPI
	from   string
}

func NewSES(client sesAPI, from string) (*SES, error) {
	if from == "" {
		return nil, errs.New("email sender address is not set")
	}
	return &SES{client: client, from: from}, nil
}

// NewSESFromEnv builds the SES client from the ambient AWS credential chain.
func NewSESFromEnv(ctx context.Context, region, from string) (*SES, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(err, "failed to load AWS config")
	}
	return NewSES(sesv2.NewFromConfig(awsCfg), from)
}

func (s *SES) Name() string         { return "ses" }
func (s *SES) Channel() job.Channel { return job.ChannelEmail }

func (s *SES) Send(ctx context.Context, in commands.DispatchInput) (commands.SendResult, error) {
	subject := defaultEmailSubject
	if in.Subject != nil && *in.Subject != "" {
		subject = *in.Subject
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{in.Audience},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(in.Message)},
				},
			},
		},
	})
	if err != nil {
		return commands.SendResult{}, errs.Wrap(err, "SES send failed")
	}

	return commands.SendResult{Accepted: true, ExternalID: out.MessageId}, nil
}
