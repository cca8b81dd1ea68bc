package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/core"
	testutil "github.com/trezcool/trafikkvakt/tests"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName:       "Trafikkvakt",
		Notifications: core.NotificationsConfig{DefaultFromEmail: "noreply@example.com"},
	}
}

func TestConsoleServiceMock(t *testing.T) {
	logger := testutil.NewLogger(t)
	svc := NewConsoleServiceMock(testConfig(), logger)

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "hei", BodyStr: "hello"},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "b@example.com"}}, Subject: "no content"},
		&core.EmailMessage{
			To:           []mail.Address{{Address: "c@example.com"}},
			TemplateName: "daily_duties",
			TemplateData: struct{ Broken string }{},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "hei", sent[0].Subject)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Len(t, logger.Entries("ERROR"), 1, "the broken template is logged")
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), testutil.NewLogger(t)).(*sendgridService)

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@example.com"}, {Address: "bob@example.com"}},
		Subject:     "Trafikkvakter mandag 6. oktober",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})

	assert.Equal(t, "noreply@example.com", m.From.Address)
	assert.Equal(t, "Trafikkvakt", m.From.Name)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Trafikkvakt] Trafikkvakter mandag 6. oktober", p.Subject)
	require.Len(t, p.To, 2)
	assert.Equal(t, "ada@example.com", p.To[0].Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)

	m = svc.prepare(core.EmailMessage{TextContent: "only text"})
	assert.Len(t, m.Content, 1)
}
