package email

import (
	"fmt"
	"net/mail"

	"github.com/pkg/errors"
)

// Config is the SMTP relay reminder notifications are sent through.
type Config struct {
	SMTPHost     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	To           []string
	SMTPPort     int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SMTPHost == "" {
		return errors.New("SMTP host is required")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return errors.New("SMTP port must be between 1 and 65535")
	}
	if c.FromEmail == "" {
		return errors.New("from email is required")
	}
	if len(c.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, to := range c.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return errors.Wrapf(err, "invalid recipient %q", to)
		}
	}
	return nil
}

// ServerAddress returns the SMTP server address in the format "host:port".
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

func (c *Config) from() string {
	if c.FromName == "" {
		return c.FromEmail
	}
	return (&mail.Address{Name: c.FromName, Address: c.FromEmail}).String()
}
