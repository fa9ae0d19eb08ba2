package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRendersMarkdownAlternative(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{From: "noreply@acme.test", FromName: "Acme Motors"})
	msg, err := m.Compose("a@acme.test", "Payment due", "**Jane** owes KSH 1,000.00")
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "To: a@acme.test\r\n")
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, "<strong>Jane</strong>")
	assert.Contains(t, s, "**Jane** owes")
}

func TestMailerWithoutHostIsDisabled(t *testing.T) {
	err := NewSMTPMailer(SMTPConfig{}).Send(context.Background(), "a@acme.test", "x", "y")
	assert.ErrorIs(t, err, ErrChannelDisabled)
}

func TestGatewaySMS(t *testing.T) {
	var got smsRequest
	var auth string
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	sms := NewGatewaySMS(SMSConfig{GatewayURL: srv.URL, APIKey: "k3y", SenderID: "ACME"})
	require.NoError(t, sms.Send(context.Background(), "+254700000000", "hello"))
	assert.Equal(t, "Bearer k3y", auth)
	assert.Equal(t, smsRequest{To: "+254700000000", Message: "hello", SenderID: "ACME"}, got)

	status = http.StatusBadRequest
	err := sms.Send(context.Background(), "bad", "hello")
	var gw *GatewayError
	require.True(t, errors.As(err, &gw))
	assert.True(t, gw.Permanent)
	assert.True(t, isPermanentDelivery(err))

	assert.ErrorIs(t, NewGatewaySMS(SMSConfig{}).Send(context.Background(), "x", "y"), ErrChannelDisabled)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.05", money(5))
	assert.Equal(t, "1,234,567.89", money(123456789))
	assert.Equal(t, "-1,000.00", money(-100000))
}
