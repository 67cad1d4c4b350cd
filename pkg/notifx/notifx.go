package notifx

import (
	"context"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// Notifier is the high-level notification interface.
type Notifier interface {
	EmailSender
	SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error
}

// Client is the main entry point for sending notifications.
type Client struct {
	provider    EmailSender
	templates   *TemplateRegistry
	defaultFrom string
	defaultOpts []Option
}

// NewClient creates a new notification client with the built-in templates registered.
func NewClient(provider EmailSender) *Client {
	return &Client{
		provider:  provider,
		templates: NewDefaultTemplateRegistry(),
	}
}

// WithDefaultFrom sets the sender used when a message has none.
func (c *Client) WithDefaultFrom(from string) *Client {
	c.defaultFrom = from
	return c
}

// WithDefaultOptions sets options applied to every send before the caller's own.
func (c *Client) WithDefaultOptions(opts ...Option) *Client {
	c.defaultOpts = opts
	return c
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if c.provider == nil {
		return notifxErrors.New(ErrNoProvider)
	}
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.defaultFrom
	}
	if len(c.defaultOpts) > 0 {
		opts = append(append([]Option{}, c.defaultOpts...), opts...)
	}
	return c.provider.SendEmail(ctx, msg, opts...)
}

// RegisterTemplate parses and stores a named template for later use.
func (c *Client) RegisterTemplate(name, tmplString string) error {
	return c.templates.Register(name, tmplString)
}

// SendTemplatedEmail renders a template and sends the resulting email.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error {
	body, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}

	msg.HTMLBody = body
	return c.SendEmail(ctx, msg, opts...)
}
