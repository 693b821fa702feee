package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/turnos-backend/internal/config"
	"github.com/tbourn/turnos-backend/internal/domain"
)

// TwilioClient sends WhatsApp messages through the Twilio Messages API.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *http.Client
}

// NewTwilioClient builds a client from cfg. Outbound calls are traced.
func NewTwilioClient(cfg config.NotifyConfig) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(cfg.TwilioBaseURL, "/"),
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioWhatsAppFrom,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts one message and returns the Twilio message SID.
func (c *TwilioClient) Send(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te twilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			return "", fmt.Errorf("twilio %d: %s (code %d)", resp.StatusCode, te.Message, te.Code)
		}
		return "", fmt.Errorf("twilio returned %d", resp.StatusCode)
	}
	var out struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(raw, &out)
	return out.SID, nil
}

// ClientConfirmation messages the person who booked.
type ClientConfirmation struct {
	Client        *TwilioClient
	CountryPrefix string
}

func (s *ClientConfirmation) Name() string { return "whatsapp_client" }

func (s *ClientConfirmation) Send(ctx context.Context, a domain.Appointment) error {
	_, err := s.Client.Send(ctx, WhatsAppAddress(a.Contact, s.CountryPrefix), ClientMessage(a))
	return err
}

// AdminNotification messages the operator's fixed WhatsApp address.
type AdminNotification struct {
	Client *TwilioClient
	To     string
}

func (s *AdminNotification) Name() string { return "whatsapp_admin" }

func (s *AdminNotification) Send(ctx context.Context, a domain.Appointment) error {
	_, err := s.Client.Send(ctx, s.To, AdminMessage(a))
	return err
}
