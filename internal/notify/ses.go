package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

var ErrNoRecipient = errors.New("notification has no recipient")

type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client SESAPI
	source string
}

func NewSESSender(client SESAPI, source string) *SESSender {
	return &SESSender{
		client: client,
		source: source,
	}
}

func (s *SESSender) Send(ctx context.Context, n Notification) (string, error) {
	if n.To == "" {
		return "", ErrNoRecipient
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.source),
		Destination: &types.Destination{
			ToAddresses: []string{n.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(n.Subject)},
				Body: &types.Body{
					Text: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(n.Body)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}
