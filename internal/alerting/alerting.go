// Package alerting delivers incident alerts to a site's alert destination: a
// JSON webhook for HTTP(S) URLs, a Telegram chat for "telegram:<chat_id>" or
// an e-mail for addresses.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
)

// Alerting errors.
var (
	ErrNoDestination          = errors.New("alert destination is empty")
	ErrUnsupportedDestination = errors.New("alert destination is not an http(s) URL, telegram chat or e-mail address")
	ErrEmailDisabled          = errors.New("e-mail alerts are not configured")
	ErrTelegramDisabled       = errors.New("telegram alerts are not configured")
)

// Kind is the lifecycle event an alert reports.
type Kind string

// Alert kinds.
const (
	KindOpened   Kind = "incident.opened"
	KindResolved Kind = "incident.resolved"
)

// Alert is one rendered incident alert.
type Alert struct {
	Kind     Kind
	Site     *domain.MonitoredSite
	Incident *domain.SiteIncident
	Subject  string
	Body     string
	Link     string
}

// Sender delivers an alert to one destination.
type Sender interface {
	Send(ctx context.Context, to string, alert Alert) error
}

// Config holds alerting configuration.
type Config struct {
	// BaseURL links alerts to the dashboard. Optional.
	BaseURL  string
	Timeout  time.Duration
	SMTP     SMTPConfig
	Telegram TelegramConfig
}

// Service implements incidents.Alerter.
type Service struct {
	webhook  Sender
	email    Sender
	telegram Sender
	baseURL  string
	now      func() time.Time
}

// NewService creates the alerting service. E-mail delivery is enabled when an
// SMTP host is configured and Telegram delivery when a bot token is.
func NewService(config Config) (*Service, error) {
	s := &Service{
		webhook: NewWebhookSender(WebhookConfig{Timeout: config.Timeout}),
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		now:     time.Now,
	}
	if config.SMTP.Host != "" {
		email, err := NewEmailSender(config.SMTP)
		if err != nil {
			return nil, err
		}
		s.email = email
	}
	if config.Telegram.BotToken != "" {
		if config.Telegram.Timeout == 0 {
			config.Telegram.Timeout = config.Timeout
		}
		telegram, err := NewTelegramSender(config.Telegram)
		if err != nil {
			return nil, err
		}
		s.telegram = telegram
	}
	return s, nil
}

// IncidentOpened sends the opened alert.
func (s *Service) IncidentOpened(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident) error {
	return s.send(ctx, KindOpened, site, inc)
}

// IncidentResolved sends the resolved alert.
func (s *Service) IncidentResolved(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident) error {
	return s.send(ctx, KindResolved, site, inc)
}

func (s *Service) send(ctx context.Context, kind Kind, site *domain.MonitoredSite, inc *domain.SiteIncident) error {
	sender, to, err := s.route(strings.TrimSpace(site.Alerting.Destination))
	if err != nil {
		return err
	}

	alert := Alert{Kind: kind, Site: site, Incident: inc}
	if s.baseURL != "" {
		alert.Link = fmt.Sprintf("%s/sites/%s", s.baseURL, site.ID)
	}
	alert.Subject, alert.Body = Render(alert, s.now())

	if err := sender.Send(ctx, to, alert); err != nil {
		return fmt.Errorf("send %s alert: %w", kind, err)
	}
	ctxlog.FromContext(ctx).Info("incident alert sent", "kind", kind, "incident_id", inc.ID)
	return nil
}

// route picks the sender for destination and returns the address to send to.
func (s *Service) route(destination string) (Sender, string, error) {
	if destination == "" {
		return nil, "", ErrNoDestination
	}
	if chat, ok := strings.CutPrefix(destination, TelegramPrefix); ok {
		if chat == "" {
			return nil, "", ErrUnsupportedDestination
		}
		if s.telegram == nil {
			return nil, "", ErrTelegramDisabled
		}
		return s.telegram, chat, nil
	}
	if u, err := url.Parse(destination); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return s.webhook, destination, nil
	}
	if addr, err := mail.ParseAddress(destination); err == nil {
		if s.email == nil {
			return nil, "", ErrEmailDisabled
		}
		return s.email, addr.Address, nil
	}
	return nil, "", ErrUnsupportedDestination
}
