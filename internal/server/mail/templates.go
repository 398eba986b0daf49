package mail

import (
	"bytes"
	"html/template"
)

var (
	resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>We received a request to reset your Wellkeeper password. The link below is valid for one hour.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>
</body>
</html>`))

	changedTemplate = template.Must(template.New("changed").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>Your Wellkeeper password was just changed and all other sessions were signed out.</p>
<p>If this was not you, reset your password immediately.</p>
</body>
</html>`))
)

const (
	ResetSubject   = "Reset your Wellkeeper password"
	ChangedSubject = "Your Wellkeeper password was changed"
)

type templateData struct {
	Name string
	Link string
}

// PasswordResetEmail builds the message carrying the reset link.
func PasswordResetEmail(from, to, name, link string) (Message, error) {
	html, err := render(resetTemplate, templateData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, From: from, Subject: ResetSubject, HTML: html}, nil
}

// PasswordChangedEmail builds the confirmation sent after a reset or change.
func PasswordChangedEmail(from, to, name string) (Message, error) {
	html, err := render(changedTemplate, templateData{Name: name})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, From: from, Subject: ChangedSubject, HTML: html}, nil
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
