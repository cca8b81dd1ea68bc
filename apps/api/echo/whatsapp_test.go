package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/notification"
	"github.com/trezcool/trafikkvakt/services/whatsapp"
	"github.com/trezcool/trafikkvakt/tests"
)

func seedMonday(t *testing.T, app *testApp) {
	testutil.Seed(t, app.repo, []string{"Ada", "Bob"}, "Elm St", "Oak Ave")
	seedDuties(t, app, duty.Assignments{
		"Oak Ave": {"Mandag": "Bob"},
		"Elm St":  {"Mandag": "Ada", "Tirsdag": "Bob"},
	})
}

func TestWhatsAppAPI_connection(t *testing.T) {
	app := setup(t)

	var status whatsappsvc.Status
	req, rec := newRequest(http.MethodGet, "/api/whatsapp-business/status")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshal(t, rec, &status)
	assert.Equal(t, whatsappsvc.StatusDisconnected, status.Status)
	assert.False(t, status.IsReady)
	assert.True(t, status.HasCredentials)
	assert.Equal(t, "1234", status.PhoneNumberID)

	req, rec = newRequest(http.MethodPost, "/api/whatsapp-business/connect")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Message string             `json:"message"`
		Status  whatsappsvc.Status `json:"status"`
	}
	unmarshal(t, rec, &res)
	assert.Equal(t, "WhatsApp Business API connected successfully", res.Message)
	assert.True(t, res.Status.IsReady)
}

func TestWhatsAppAPI_connectFailure(t *testing.T) {
	app := setup(t, func(conf *core.Config) { conf.WhatsApp.AccessToken = "expired" })

	runHTTPTests(t, app, []httpTest{
		{
			name:     "rejected token",
			method:   http.MethodPost,
			path:     "/api/whatsapp-business/connect",
			wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "Invalid OAuth access token (Code: 190)"}),
		},
		{
			name:     "status is error",
			method:   http.MethodGet,
			path:     "/api/whatsapp-business/status",
			wantCode: http.StatusOK,
		},
	})
	assert.Equal(t, whatsappsvc.StatusError, app.Server.(*server).opts.WhatsApp.Status().Status)
}

func TestWhatsAppAPI_send(t *testing.T) {
	app := setup(t)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no message",
			method:   http.MethodPost,
			path:     "/api/whatsapp-business/send",
			body:     []byte(`{"message":"  "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "Message is required"}),
		},
		{
			name:     "no template name",
			method:   http.MethodPost,
			path:     "/api/whatsapp-business/send-template",
			body:     []byte(`{"languageCode":"nb"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "Template name is required"}),
		},
	})

	req, rec := newRequest(http.MethodPost, "/api/whatsapp-business/send", []byte(`{"message":"Hei!","recipient":"+4711111111"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res notification.SendResult
	unmarshal(t, rec, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "wamid.1", res.MessageID)
	assert.Equal(t, "4711111111", res.Recipient)

	req, rec = newRequest(http.MethodPost, "/api/whatsapp-business/send-template", []byte(`{"templateName":"reminder","languageCode":"nb"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	res = notification.SendResult{}
	unmarshal(t, rec, &res)
	assert.Equal(t, "reminder", res.Template)
	assert.Equal(t, "4799999999", res.Recipient)

	msgs := app.graph.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]interface{}{"body": "Hei!"}, msgs[0]["text"])
	tmpl := msgs[1]["template"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"code": "nb"}, tmpl["language"])
}

func TestWhatsAppAPI_templates(t *testing.T) {
	app := setup(t)
	seedMonday(t, app)

	t.Run("preview", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/whatsapp-business/template-preview")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res struct {
			TodayName   string           `json:"todayName"`
			DutiesCount int              `json:"dutiesCount"`
			RawDuties   []duty.TodayDuty `json:"rawDuties"`
			Params      struct {
				DateText   textParameter `json:"dateText"`
				DutiesText textParameter `json:"dutiesText"`
			} `json:"templateParameters"`
		}
		unmarshal(t, rec, &res)
		assert.Equal(t, "Mandag", res.TodayName)
		assert.Equal(t, 2, res.DutiesCount)
		assert.Equal(t, []duty.TodayDuty{{Crossing: "Elm St", Child: "Ada"}, {Crossing: "Oak Ave", Child: "Bob"}}, res.RawDuties)
		assert.Equal(t, textParameter{Value: "mandag 6. oktober", Length: 17}, res.Params.DateText)
		assert.Equal(t, "📍 Elm St: Ada\n📍 Oak Ave: Bob", res.Params.DutiesText.Value)
		assert.Equal(t, 2, res.Params.DutiesText.Lines)
		assert.True(t, res.Params.DutiesText.HasSpecialChars)
	})

	t.Run("custom template", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/whatsapp-business/test-custom-template")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res struct {
			Success      bool                    `json:"success"`
			Result       notification.SendResult `json:"result"`
			DutiesCount  int                     `json:"dutiesCount"`
			TemplateData map[string]string       `json:"templateData"`
		}
		unmarshal(t, rec, &res)
		assert.True(t, res.Success)
		assert.Equal(t, notification.DutiesTemplate, res.Result.Template)
		assert.Equal(t, 2, res.DutiesCount)
		assert.Equal(t, "mandag 6. oktober", res.TemplateData["dateText"])
	})

	t.Run("basic template falls back to hello_world", func(t *testing.T) {
		app.graph.FailTemplate(notification.DutiesTemplate, whatsappsvc.ErrCodeTemplateNotFound)

		req, rec := newRequest(http.MethodPost, "/api/whatsapp-business/test-basic-template")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var res ResultResponse
		unmarshal(t, rec, &res)
		assert.Equal(t, "Basic template test sent successfully", res.Message)
		assert.Equal(t, notification.HelloWorldTemplate, res.Result.Template)
	})

	t.Run("hello world", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{{
			name:     "test-template",
			method:   http.MethodPost,
			path:     "/api/whatsapp-business/test-template",
			wantCode: http.StatusOK,
		}})
		msgs := app.graph.Messages()
		last := msgs[len(msgs)-1]["template"].(map[string]interface{})
		assert.Equal(t, notification.HelloWorldTemplate, last["name"])
	})

	t.Run("list", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{
			{
				name:     "templates",
				method:   http.MethodGet,
				path:     "/api/whatsapp-business/templates",
				wantCode: http.StatusOK,
				wantData: []byte(`{"data":[{"name":"hello_world","language":"en_US","status":"APPROVED"}]}`),
			},
			{
				name:     "profile",
				method:   http.MethodGet,
				path:     "/api/whatsapp-business/profile",
				wantCode: http.StatusOK,
				wantData: []byte(`{"data":[{"about":"Trafikkvakt","messaging_product":"whatsapp"}]}`),
			},
		})
	})
}

func TestWhatsAppAPI_today(t *testing.T) {
	app := setup(t)
	seedMonday(t, app)

	req, rec := newRequest(http.MethodGet, "/api/whatsapp-business/message/today")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg struct {
		Message     string           `json:"message"`
		IsEmpty     bool             `json:"isEmpty"`
		DutiesCount int              `json:"dutiesCount"`
		DayName     string           `json:"dayName"`
		Duties      []duty.TodayDuty `json:"duties"`
	}
	unmarshal(t, rec, &msg)
	assert.False(t, msg.IsEmpty)
	assert.Equal(t, 2, msg.DutiesCount)
	assert.Equal(t, "Mandag", msg.DayName)
	assert.Contains(t, msg.Message, "🚸 Trafikkvakter for mandag 6.10.2025")
	assert.Contains(t, msg.Message, "📍 Oak Ave: Bob")

	req, rec = newRequest(http.MethodPost, "/api/whatsapp-business/send-today")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var sent struct {
		Success     bool   `json:"success"`
		MessageID   string `json:"messageId"`
		DutiesCount int    `json:"dutiesCount"`
	}
	unmarshal(t, rec, &sent)
	assert.True(t, sent.Success)
	assert.Equal(t, "wamid.1", sent.MessageID)
	assert.Equal(t, 2, sent.DutiesCount)

	req, rec = newRequest(http.MethodPost, "/api/whatsapp-business/test")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := app.graph.Messages()
	require.Len(t, msgs, 2)
	body := msgs[1]["text"].(map[string]interface{})["body"].(string)
	assert.Contains(t, body, "Sent at: 6.10.2025, 07:00:00")
}

func TestWhatsAppAPI_providerDown(t *testing.T) {
	app := setup(t)
	app.graph.SetDown(true)

	runHTTPTests(t, app, []httpTest{{
		name:     "send",
		method:   http.MethodPost,
		path:     "/api/whatsapp-business/send",
		body:     []byte(`{"message":"Hei!"}`),
		wantCode: http.StatusInternalServerError,
		wantData: marchallObj(t, httpErr{Error: "Service Unavailable (Code: 0)"}),
	}})
	assert.Len(t, app.logger.Entries("ERROR"), 1)
}
