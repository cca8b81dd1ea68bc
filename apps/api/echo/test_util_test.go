package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/auth"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/events"
	"github.com/trezcool/trafikkvakt/core/notification"
	"github.com/trezcool/trafikkvakt/services/email"
	"github.com/trezcool/trafikkvakt/services/whatsapp"
	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/inmem"
	"github.com/trezcool/trafikkvakt/tests"
)

// Monday 6 October 2025, 07:00 in Oslo
var testNow = time.Date(2025, time.October, 6, 5, 0, 0, 0, time.UTC)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

type testApp struct {
	Server
	conf      *core.Config
	repo      duty.Repository
	svc       *duty.Service
	broker    *events.Broker
	scheduler *notification.Scheduler
	graph     *testutil.GraphAPI
	mailer    *emailsvc.ConsoleServiceMock
	logger    *testutil.Logger
}

func setup(t *testing.T, mutate ...func(*core.Config)) *testApp {
	conf := testutil.NewConfig()
	graph := testutil.NewGraphAPI(t, conf.WhatsApp.AccessToken)
	conf.WhatsApp.BaseURL = graph.URL
	conf.WhatsApp.BusinessAccountID = "5678"
	for _, m := range mutate {
		m(conf)
	}

	notification.NowFunc = func() time.Time { return testNow }
	NowFunc = func() time.Time { return testNow }
	t.Cleanup(func() {
		notification.NowFunc = time.Now
		NowFunc = time.Now
	})

	app := &testApp{
		conf:   conf,
		graph:  graph,
		logger: testutil.NewLogger(t),
		repo:   storage.NewDutyRepository(inmem.NewTable()),
		broker: events.NewBroker(),
	}
	t.Cleanup(app.broker.Close)
	app.mailer = emailsvc.NewConsoleServiceMock(conf, app.logger)
	app.svc = duty.NewServiceMock(app.repo, app.broker, app.logger, 1)

	client := whatsappsvc.NewClient(conf.WhatsApp, app.logger)
	app.scheduler = notification.NewScheduler(notification.Options{
		Duties:    app.svc,
		Messenger: client,
		Mailer:    app.mailer,
		Emails:    []string{"parents@example.com"},
		Logger:    app.logger,
		Location:  conf.Notifications.Location(),
		Enabled:   conf.Notifications.Enabled,
		Time:      conf.Notifications.Time,
	})
	t.Cleanup(app.scheduler.Stop)

	app.Server = NewServer(&Options{
		Conf:      conf,
		Logger:    app.logger,
		DutySvc:   app.svc,
		Broker:    app.broker,
		Scheduler: app.scheduler,
		WhatsApp:  client,
		Diagnostics: func() map[string]interface{} {
			return map[string]interface{}{"storageBackend": "memory"}
		},
	})
	return app
}

func withAuth(t *testing.T) func(*core.Config) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}
	return func(conf *core.Config) { conf.Auth.AdminPasswordHash = hash }
}

func getToken(t *testing.T, conf *core.Config) string {
	token, err := auth.GenerateToken(auth.NewAdminClaims(conf), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
