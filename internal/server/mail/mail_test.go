package mail

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	infos []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...any) {
	l.infos = append(l.infos, msg)
}
func (l *recordingLogger) Warn(context.Context, string, ...any)  {}
func (l *recordingLogger) Error(context.Context, string, ...any) {}
func (l *recordingLogger) With(...any) logging.Logger            { return l }

func TestPasswordResetEmail_EscapesAndEmbedsLink(t *testing.T) {
	msg, err := PasswordResetEmail("no-reply@x", "a@b.com", "<b>Ann</b>", "https://app/reset?token=abc123")
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "no-reply@x", msg.From)
	assert.Equal(t, ResetSubject, msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://app/reset?token=abc123"`)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ann&lt;/b&gt;")
	assert.NotContains(t, msg.HTML, "<b>Ann</b>")
}

func TestPasswordChangedEmail_NoName(t *testing.T) {
	msg, err := PasswordChangedEmail("no-reply@x", "a@b.com", "")
	require.NoError(t, err)
	assert.Equal(t, ChangedSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "<p>Hello,</p>")
}

func TestLogMailer_Send(t *testing.T) {
	l := &recordingLogger{}
	m := NewLogMailer(l)

	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.com", Subject: "s"}))
	assert.Equal(t, []string{"email dispatched"}, l.infos)

	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "a@b.com"}), context.Canceled)
}
