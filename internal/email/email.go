// Package email sends pipeline notifications through AWS SES.
//
// Grounded on igait-lib's EmailClient (igait-lib/src/microservice/email.rs):
// a from-address and from-identity-ARN configured once, a single Send
// method that wraps an SES SendEmail call, and the default addresses the
// original fell back to when the environment didn't set them.
package email

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sesv2"
)

// DefaultFromAddress and DefaultFromIdentityARN match the values the
// original client used when SES_FROM_ADDRESS / SES_FROM_IDENTITY_ARN were
// unset.
const (
	DefaultFromAddress    = "noreply@igaitapp.com"
	DefaultFromIdentityARN = "arn:aws:ses:us-east-2:851725269484:identity/noreply@igaitapp.com"
)

// Config is the subset of internal/config.Email the client needs.
type Config struct {
	Region           string
	FromAddress      string
	FromIdentityARN  string
}

// Client sends HTML emails via SES.
type Client struct {
	ses              *sesv2.SESV2
	fromAddress      string
	fromIdentityARN  string
}

// New builds a Client from an AWS session, applying the package defaults
// for any unset address fields.
func New(cfg Config) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	from := cfg.FromAddress
	if from == "" {
		from = DefaultFromAddress
	}
	arn := cfg.FromIdentityARN
	if arn == "" {
		arn = DefaultFromIdentityARN
	}

	return &Client{
		ses:             sesv2.New(sess),
		fromAddress:     from,
		fromIdentityARN: arn,
	}, nil
}

// Sender is the interface stage workers and handlers depend on, satisfied
// by *Client and *MemSender in tests.
type Sender interface {
	Send(to, subject, bodyHTML string) error
}

var _ Sender = (*Client)(nil)

// Send delivers one HTML email to a single recipient.
func (c *Client) Send(to, subject, bodyHTML string) error {
	_, err := c.ses.SendEmail(&sesv2.SendEmailInput{
		FromEmailAddress:         aws.String(c.fromAddress),
		FromEmailAddressIdentityArn: aws.String(c.fromIdentityARN),
		Destination: &sesv2.Destination{
			ToAddresses: []*string{aws.String(to)},
		},
		Content: &sesv2.EmailContent{
			Simple: &sesv2.Message{
				Subject: &sesv2.Content{Data: aws.String(subject)},
				Body: &sesv2.Body{
					Html: &sesv2.Content{Data: aws.String(bodyHTML)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
