package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRenderActivationTemplate(t *testing.T) {
	body, subject, err := Render(TemplateActivateDevice, map[string]any{
		"activation_link": "https://hyperion.example.org/myeclpay/devices/activate?token=abc",
	})
	require.NoError(t, err)
	require.Equal(t, "MyECL - activate your device", subject)
	require.Contains(t, body, "devices/activate?token=abc")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", nil)
	require.Error(t, err)
}

func TestSMTPProviderSendTemplate(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.org", Port: 587, From: "noreply@example.org"})
	var gotAddr string
	var gotMsg []byte
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		require.Equal(t, "noreply@example.org", from)
		require.Equal(t, []string{"user@school.fr"}, to)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"user@school.fr"}, TemplateTOSSigned, map[string]any{"version": 2})
	require.NoError(t, err)
	require.Equal(t, "smtp.example.org:587", gotAddr)
	require.True(t, strings.Contains(string(gotMsg), "Subject: MyECL - You signed the Terms of Service for MyECLPay"))
	require.Contains(t, string(gotMsg), "version 2")
}

func TestSendWithoutRecipient(t *testing.T) {
	require.ErrorIs(t, NewSMTP(Config{}).Send(context.Background(), nil, "s", "b"), ErrNoRecipient)
}

func TestNewFromConfig(t *testing.T) {
	require.IsType(t, &NoOpProvider{}, NewFromConfig(config.Config{}))
	require.IsType(t, &SMTPProvider{}, NewFromConfig(config.Config{SMTP: config.SMTPConfig{Active: true}}))
}
