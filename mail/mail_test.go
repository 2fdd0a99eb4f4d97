package mail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/config"
)

func TestWelcomeMessage_EscapesHTML(t *testing.T) {
	msg, err := WelcomeMessage(WelcomeData{Name: "<script>x</script>", Email: "a@x.com"})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.To)
	assert.NotEmpty(t, msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
	assert.Contains(t, msg.Text, "Welcome, <script>x</script>!")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	err := sender.Send(context.Background(), Message{To: "a@x.com", Subject: "Hi", Text: "secret body"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "a@x.com")
	assert.NotContains(t, buf.String(), "secret body")

	assert.Error(t, sender.Send(context.Background(), Message{Subject: "no recipient", Text: "x"}))
	assert.Error(t, sender.Send(context.Background(), Message{To: "a@x.com"}))
}

func TestSMTPSender_Build(t *testing.T) {
	sender, err := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 587, User: "shop@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = sender.build(Message{To: "a@x.com", Subject: "Hi", HTML: "<p>hi</p>", Text: "hi"})
	assert.NoError(t, err)

	_, err = sender.build(Message{To: "not an address", Subject: "Hi", Text: "hi"})
	assert.Error(t, err)

	_, err = sender.build(Message{To: "a@x.com"})
	assert.Error(t, err)
}
