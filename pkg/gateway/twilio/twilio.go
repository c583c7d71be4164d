// Package twilio implements the outbound gateway and webhook signature
// validation on the Twilio WhatsApp API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twiliosdk "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"pavebot/pkg/config"
)

// Gateway sends WhatsApp messages through the Twilio REST API and
// validates inbound webhook signatures with the account's auth token.
type Gateway struct {
	client    *twiliosdk.RestClient
	validator twilioclient.RequestValidator
	from      string
	log       *slog.Logger
}

// New validates credentials and constructs the gateway.
func New(cfg config.TwilioConfig, log *slog.Logger) (*Gateway, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	authToken := strings.TrimSpace(cfg.AuthToken)
	from := strings.TrimSpace(cfg.WhatsAppNumber)
	if accountSID == "" || authToken == "" {
		return nil, errors.New("gateway.twilio.account_sid and auth_token are required")
	}
	if from == "" {
		return nil, errors.New("gateway.twilio.whatsapp_number is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Gateway{
		client: twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		validator: twilioclient.NewRequestValidator(authToken),
		from:      from,
		log:       log.With("component", "gateway.twilio"),
	}, nil
}

// SendText delivers one text message. The Twilio SDK manages its own
// HTTP timeouts, so ctx is honored only up front.
func (g *Gateway) SendText(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(waAddress(to))
	params.SetFrom(waAddress(g.from))
	params.SetBody(body)

	startedAt := time.Now()
	message, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send text: %w", err)
	}

	g.log.Debug("text sent", "sid", deref(message.Sid), "duration_ms", time.Since(startedAt).Milliseconds())
	return nil
}

// SendImage delivers one picture by public URL; the caption rides as
// the message body.
func (g *Gateway) SendImage(ctx context.Context, to, url, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(waAddress(to))
	params.SetFrom(waAddress(g.from))
	params.SetMediaUrl([]string{url})
	if caption != "" {
		params.SetBody(caption)
	}

	startedAt := time.Now()
	message, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send image: %w", err)
	}

	g.log.Debug("image sent", "sid", deref(message.Sid), "duration_ms", time.Since(startedAt).Milliseconds())
	return nil
}

// ValidateForm checks the X-Twilio-Signature of a form-encoded webhook
// against the effective request URL and the posted parameters.
func (g *Gateway) ValidateForm(url string, params map[string]string, signature string) bool {
	return g.validator.Validate(url, params, signature)
}

// ValidateBody checks the signature of a JSON webhook against the
// effective URL plus the raw body.
func (g *Gateway) ValidateBody(url string, body []byte, signature string) bool {
	return g.validator.ValidateBody(url, body, signature)
}

// waAddress prefixes the whatsapp: scheme Twilio expects, tolerating
// numbers that already carry it.
func waAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}

	return "whatsapp:" + number
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
