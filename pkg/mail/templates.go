package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// CodeEmail carries the data rendered into verification and password reset emails.
type CodeEmail struct {
	Email    string
	Fullname string
	Username string
	Code     string
	Year     int
}

// Digits splits the code so templates can render one box per digit.
func (d CodeEmail) Digits() []string {
	return strings.Split(d.Code, "")
}

func (d CodeEmail) DisplayName() string {
	if strings.TrimSpace(d.Fullname) != "" {
		return d.Fullname
	}
	return d.Username
}

var (
	verifyTemplate = template.Must(template.New("verify").Parse(`<html><body>
<p>Hi {{.DisplayName}},</p>
<p>Use the code below to verify your HappyCat account:</p>
<p>{{range .Digits}}<span style="display:inline-block;padding:8px 12px;margin:2px;border:1px solid #ccc;font-size:20px">{{.}}</span>{{end}}</p>
<p>If you did not sign up, you can ignore this email.</p>
<p>&copy; {{.Year}} HappyCat</p>
</body></html>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<html><body>
<p>Hi {{.DisplayName}},</p>
<p>We received a request to reset your password. Your reset code is:</p>
<p>{{range .Digits}}<span style="display:inline-block;padding:8px 12px;margin:2px;border:1px solid #ccc;font-size:20px">{{.}}</span>{{end}}</p>
<p>If you did not request a reset, please ignore this email.</p>
<p>&copy; {{.Year}} HappyCat</p>
</body></html>`))

	changedTemplate = template.Must(template.New("changed").Parse(`<html><body>
<p>Hi {{.DisplayName}},</p>
<p>The password of your HappyCat account was just changed.</p>
<p>If this was not you, reset your password immediately and contact support.</p>
<p>&copy; {{.Year}} HappyCat</p>
</body></html>`))
)

// VerificationMessage renders the account verification email.
func VerificationMessage(data CodeEmail) (Message, error) {
	return render(verifyTemplate, "Verify your HappyCat account", data)
}

// PasswordResetMessage renders the password reset email.
func PasswordResetMessage(data CodeEmail) (Message, error) {
	return render(resetTemplate, "Reset your HappyCat password", data)
}

// PasswordChangedMessage renders the notice sent after a successful reset.
func PasswordChangedMessage(data CodeEmail) (Message, error) {
	return render(changedTemplate, "Your HappyCat password was changed", data)
}

func render(tpl *template.Template, subject string, data CodeEmail) (Message, error) {
	if strings.TrimSpace(data.Email) == "" {
		return Message{}, fmt.Errorf("mail: recipient is required")
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", tpl.Name(), err)
	}
	return Message{
		To:      []string{data.Email},
		Subject: subject,
		Body:    buf.String(),
		HTML:    true,
	}, nil
}
