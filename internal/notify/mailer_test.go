package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/modreview/internal/core"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureSend(sent *[]sentMail, failTo string) SendFunc {
	return func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if len(to) == 1 && to[0] == failTo {
			return errors.New("550 mailbox unavailable")
		}
		*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
}

func TestNewMailer_Validation(t *testing.T) {
	_, err := NewMailer(MailConfig{From: "a@b"}, nil)
	assert.Error(t, err)
	_, err = NewMailer(MailConfig{Host: "smtp"}, nil)
	assert.Error(t, err)
}

func TestMailer_SendReminder(t *testing.T) {
	var sent []sentMail
	m, err := NewMailer(MailConfig{Host: "smtp.example.org", From: "reviews@ames.edu.eu", SystemURL: "https://reviews.example.org/"}, captureSend(&sent, ""))
	require.NoError(t, err)

	err = m.SendReminder(context.Background(), "janedoe@ames.edu.eu", []core.ModuleSummary{
		{ModuleCode: "AC11001", ModuleName: "Intro <Basics>"},
		{ModuleCode: "INDPLACE1", ModuleName: "Placement"},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)

	mail := sent[0]
	assert.Equal(t, "smtp.example.org:587", mail.addr)
	assert.Equal(t, []string{"janedoe@ames.edu.eu"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: Action Required: Pending Module Reviews\r\n")
	assert.Contains(t, mail.msg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, mail.msg, "AC11001")
	assert.Contains(t, mail.msg, "Intro &lt;Basics&gt;")
	assert.Contains(t, mail.msg, "https://reviews.example.org/auth/login")
}

func TestMailer_NotifyProvisioned_JoinsFailures(t *testing.T) {
	var sent []sentMail
	m, err := NewMailer(MailConfig{Host: "smtp", Port: 25, From: "x@y"}, captureSend(&sent, "bad@ames.edu.eu"))
	require.NoError(t, err)

	err = m.NotifyProvisioned(context.Background(), []core.UserRecord{
		{Username: "Jane Doe", Email: "janedoe@ames.edu.eu"},
		{Username: "Bad", Email: "bad@ames.edu.eu"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@ames.edu.eu")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].msg, "<strong>Jane Doe</strong>")
}

func TestMailer_CancelledContext(t *testing.T) {
	var sent []sentMail
	m, err := NewMailer(MailConfig{Host: "smtp", From: "x@y"}, captureSend(&sent, ""))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendReminder(ctx, "a@b", nil), context.Canceled)
	assert.Empty(t, sent)
}

func TestReviewReminder_NoLoginLink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ReviewReminder(nil, "").Render(context.Background(), &buf))
	assert.False(t, strings.Contains(buf.String(), "<a href"))
	assert.Contains(t, buf.String(), "Module Review Reminder")
}

func TestLogNotifier(t *testing.T) {
	var n LogNotifier
	assert.NoError(t, n.NotifyProvisioned(context.Background(), []core.UserRecord{{Username: "x"}}))
	assert.NoError(t, n.SendReminder(context.Background(), "a@b", []core.ModuleSummary{{ModuleCode: "AC11001"}}))
}
