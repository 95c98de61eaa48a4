package app

import (
	"strings"

	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/internal/queue"
	"github.com/charlesng35/happycat/internal/speech"
	"github.com/charlesng35/happycat/pkg/mail"
)

// ClientConfig converts DatabaseConfig into database.Config.
func (c DatabaseConfig) ClientConfig() database.Config {
	cfg := database.Config{
		Driver:         strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:           c.Path,
		DSN:            c.DSN,
		Host:           c.Host,
		Port:           c.Port,
		Name:           c.Name,
		User:           c.User,
		Password:       c.Password,
		MaxOpenConns:   c.MaxOpenConns,
		MaxIdleConns:   c.MaxIdleConns,
		ConnectTimeout: c.ConnectTimeout,
		ConnectRetries: c.ConnectRetries,
	}
	if c.SSLMode != "" {
		cfg.Options = map[string]string{"sslmode": c.SSLMode}
	}
	return cfg
}

// WorkerConfig converts QueueConfig into queue.WorkerConfig.
func (c QueueConfig) WorkerConfig() queue.WorkerConfig {
	return queue.WorkerConfig{
		PollInterval: c.PollInterval,
		MaxAttempts:  c.MaxAttempts,
	}
}

// Enabled reports whether merchant credentials are present.
func (c PaymentConfig) Enabled() bool {
	return strings.TrimSpace(c.TmnCode) != "" && strings.TrimSpace(c.HashSecret) != ""
}

// GatewayConfig converts PaymentConfig into payment.Config.
func (c PaymentConfig) GatewayConfig() payment.Config {
	return payment.Config{
		TmnCode:    strings.TrimSpace(c.TmnCode),
		HashSecret: c.HashSecret,
		PayURL:     strings.TrimSpace(c.PayURL),
		ReturnURL:  strings.TrimSpace(c.ReturnURL),
	}
}

// ClientConfig converts SpeechConfig into speech.Config.
func (c SpeechConfig) ClientConfig() speech.Config {
	return speech.Config{
		Region:          strings.TrimSpace(c.Region),
		SubscriptionKey: c.SubscriptionKey,
		Timeout:         c.Timeout,
	}
}

// SMTPSettings hands the SMTP block to the mailer. The two structs share
// their field layout, so this is a plain conversion.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings(c.SMTP)
}
