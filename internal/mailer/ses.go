package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"

	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/pkg/logger"
)

// SES sends through AWS SES v2 with static credentials.
type SES struct {
	accessKeyID     string
	secretAccessKey string
	region          string

	once    sync.Once
	client  *sesv2.Client
	initErr error
}

// NewSES creates an SES sender. The AWS client is built lazily on the
// first send so constructing a sender never does I/O.
func NewSES(accessKeyID, secretAccessKey, region string) *SES {
	return &SES{
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		region:          region,
	}
}

func (s *SES) api(ctx context.Context) (*sesv2.Client, error) {
	s.once.Do(func() {
		creds := credentials.NewStaticCredentialsProvider(s.accessKeyID, s.secretAccessKey, "")
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(s.region),
			awsconfig.WithCredentialsProvider(creds),
		)
		if err != nil {
			s.initErr = fmt.Errorf("loading AWS config: %w", err)
			return
		}
		s.client = sesv2.NewFromConfig(awsCfg)
	})
	return s.client, s.initErr
}

// Send delivers one email.
func (s *SES) Send(ctx context.Context, from, to, subject, html string) error {
	client, err := s.api(ctx)
	if err != nil {
		return &engine.TransportError{Provider: "ses", Msg: err.Error()}
	}

	messageID := uuid.New().String()
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html)},
				},
			},
		},
	}

	if _, err := client.SendEmail(ctx, input); err != nil {
		return &engine.TransportError{Provider: "ses", Msg: err.Error()}
	}

	logger.Info("email sent", "provider", "ses", "message_id", messageID, "to", to)
	return nil
}
