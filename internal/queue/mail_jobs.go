package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/mail"
)

// Mail job names.
const (
	JobVerifyEmail     = "verify-email"
	JobResetPassword   = "reset-password"
	JobPasswordChanged = "password-changed"
)

// CodeEmailPayload is the payload of the mail jobs.
type CodeEmailPayload struct {
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Code     string `json:"code,omitempty"`
	Year     int    `json:"year"`
}

// RegisterMailJobs wires the mail job handlers onto w.
func RegisterMailJobs(w *Worker, mailer mail.Mailer) {
	w.Handle(JobVerifyEmail, mailHandler(mailer, mail.VerificationMessage))
	w.Handle(JobResetPassword, mailHandler(mailer, mail.PasswordResetMessage))
	w.Handle(JobPasswordChanged, mailHandler(mailer, mail.PasswordChangedMessage))
}

func mailHandler(mailer mail.Mailer, render func(mail.CodeEmail) (mail.Message, error)) Handler {
	log := logger.WithModule("queue")
	return func(ctx context.Context, raw []byte) error {
		var p CodeEmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return backoff.Permanent(fmt.Errorf("decode mail payload: %w", err))
		}

		msg, err := render(mail.CodeEmail{
			Email:    p.Email,
			Fullname: p.Fullname,
			Username: p.Username,
			Code:     p.Code,
			Year:     p.Year,
		})
		if err != nil {
			return backoff.Permanent(err)
		}

		err = mailer.Send(ctx, msg)
		if errors.Is(err, mail.ErrSMTPDisabled) {
			log.Warn("smtp disabled, email not sent", zap.String("to", p.Email), zap.String("subject", msg.Subject))
			return nil
		}
		return err
	}
}
