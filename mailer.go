package users

import "context"

// Mailer delivers account lifecycle email. Implementations talk to a real
// delivery service; the default just logs so registration never blocks on
// an outbound dependency.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, user *User) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, user *User) error

func (f MailerFunc) SendVerificationEmail(ctx context.Context, user *User) error {
	if f == nil {
		return nil
	}
	return f(ctx, user)
}

type logMailer struct {
	logger Logger
}

func (m logMailer) SendVerificationEmail(_ context.Context, user *User) error {
	if user != nil {
		m.logger.Info("verification email queued for %s", user.Email)
	}
	return nil
}

func normalizeMailer(m Mailer, logger Logger) Mailer {
	if m != nil {
		return m
	}
	if logger == nil {
		logger = defLogger{}
	}
	return logMailer{logger: logger}
}
