package mailer

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"ICTSERVE-backend/internal/platform/config"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ParsesBack(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	raw, err := Build("ICTServe <noreply@ictserve.local>", Message{
		To:      []string{"tech@ictserve.local", "lead@ictserve.local"},
		Subject: "[HD2026000123] Maintenance required: Laptop",
		Body:    "Damage report: screen cracked\nPriority: critical",
	}, now)
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[HD2026000123] Maintenance required: Laptop", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "tech@ictserve.local", to[0].Address)

	date, err := r.Header.Date()
	require.NoError(t, err)
	assert.True(t, now.Equal(date))

	p, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "screen cracked")
}

func TestBuild_Validation(t *testing.T) {
	_, err := Build("noreply@ictserve.local", Message{Subject: "x"}, time.Now())
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = Build("noreply@ictserve.local", Message{To: []string{"not an address"}}, time.Now())
	assert.Error(t, err)
}

func TestNew_DisabledUsesLogMailer(t *testing.T) {
	m := New(config.MailConfig{Enabled: false}, nil)
	_, ok := m.(LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), Message{To: []string{"a@b.c"}}))
	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipients)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "s"}))
	assert.Len(t, r.Messages(), 1)
}
