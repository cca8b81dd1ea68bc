package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	testDuty struct {
		Crossing string
		Child    string
	}

	testDailyData struct {
		Message  string
		DateText string
		Duties   []testDuty
	}
)

func TestEmailMessage_Render(t *testing.T) {
	t.Run("template", func(t *testing.T) {
		msg := EmailMessage{
			To:           []mail.Address{{Address: "parents@example.com"}},
			TemplateName: "daily_duties",
			TemplateData: testDailyData{
				Message:  "🚸 Trafikkvakter for mandag 6.10.2025",
				DateText: "mandag 6. oktober",
				Duties:   []testDuty{{Crossing: "Elm St", Child: "Ada & Bob"}},
			},
		}
		require.NoError(t, msg.Render())
		assert.True(t, msg.HasRecipients())
		assert.True(t, msg.HasContent())
		assert.Equal(t, "🚸 Trafikkvakter for mandag 6.10.2025\n\n--\nTrafikkvakt\n", msg.TextContent)
		assert.Contains(t, msg.HTMLContent, "<h2>Trafikkvakter mandag 6. oktober</h2>")
		assert.Contains(t, msg.HTMLContent, "<strong>Elm St</strong>: Ada &amp; Bob")
	})

	t.Run("no duties", func(t *testing.T) {
		msg := EmailMessage{TemplateName: "daily_duties", TemplateData: testDailyData{Message: "Ingen vakter planlagt i dag."}}
		require.NoError(t, msg.Render())
		assert.False(t, msg.HasRecipients())
		assert.Contains(t, msg.HTMLContent, "<p>Ingen vakter planlagt i dag.</p>")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "hello", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := EmailMessage{TemplateName: "nope"}
		require.NoError(t, msg.Render())
		assert.False(t, msg.HasContent())
	})

	t.Run("missing data", func(t *testing.T) {
		msg := EmailMessage{TemplateName: "daily_duties", TemplateData: struct{ Title string }{"x"}}
		assert.Error(t, msg.Render())
	})
}
