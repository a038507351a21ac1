package delivery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"creatorreminder/internal/reminder"
	"creatorreminder/pkg/circuitbreaker"
)

const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
	ProviderMQ     = "mq"
	ProviderLog    = "log"
)

type Config struct {
	Provider      string                `yaml:"provider"`
	From          string                `yaml:"from"`
	RatePerSecond float64               `yaml:"rate_per_second"`
	Resend        ResendConfig          `yaml:"resend"`
	SMTP          SMTPConfig            `yaml:"smtp"`
	Breaker       circuitbreaker.Config `yaml:"breaker"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Publisher is the subset of mq.Publisher the mq provider needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// New builds the sender selected by cfg.Provider. publisher is only used by
// the mq provider and may be nil otherwise.
func New(cfg Config, publisher Publisher, logger *zap.Logger) (reminder.Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderResend:
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend provider requires an api key")
		}
		return NewResendSender(cfg.Resend.APIKey, cfg.From), nil
	case ProviderSMTP:
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("smtp provider requires a host")
		}
		return NewSMTPSender(cfg.SMTP, cfg.From), nil
	case ProviderMQ:
		if publisher == nil {
			return nil, fmt.Errorf("mq provider requires a publisher")
		}
		return NewMQSender(publisher), nil
	case ProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown delivery provider %q", cfg.Provider)
	}
}
