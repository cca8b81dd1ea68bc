package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type (
	// GraphAPI fakes the WhatsApp Business Cloud API.
	GraphAPI struct {
		*httptest.Server
		Token string

		mu            sync.Mutex
		requests      []GraphRequest
		failTemplates map[string]int // template name -> provider error code
		down          bool
		nextID        int
	}

	GraphRequest struct {
		Method string
		Path   string
		Auth   string
		Body   map[string]interface{}
	}
)

// NewGraphAPI starts a fake Graph API accepting the given bearer token. It is closed with the test.
func NewGraphAPI(t testing.TB, token string) *GraphAPI {
	g := &GraphAPI{Token: token, failTemplates: make(map[string]int)}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Close)
	return g
}

// FailTemplate makes sending the named template answer the given provider error code.
func (g *GraphAPI) FailTemplate(name string, code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failTemplates[name] = code
}

// SetDown makes every call answer 503.
func (g *GraphAPI) SetDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

func (g *GraphAPI) Requests() []GraphRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GraphRequest(nil), g.requests...)
}

// Messages returns the bodies of the sent messages.
func (g *GraphAPI) Messages() []map[string]interface{} {
	var msgs []map[string]interface{}
	for _, r := range g.Requests() {
		if r.Method == http.MethodPost && strings.HasSuffix(r.Path, "/messages") {
			msgs = append(msgs, r.Body)
		}
	}
	return msgs
}

func (g *GraphAPI) handle(w http.ResponseWriter, r *http.Request) {
	req := GraphRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &req.Body)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	w.Header().Set("Content-Type", "application/json")
	if g.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if req.Auth != "Bearer "+g.Token {
		writeGraphError(w, http.StatusUnauthorized, 190, "Invalid OAuth access token")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/") // version, id, edge
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		_, _ = fmt.Fprintf(w, `{"id":%q,"display_phone_number":"+47 99 99 99 99","verified_name":"Trafikkvakt"}`, parts[1])
	case len(parts) == 3 && parts[2] == "messages" && r.Method == http.MethodPost:
		if tmpl, ok := req.Body["template"].(map[string]interface{}); ok {
			if code, fail := g.failTemplates[fmt.Sprint(tmpl["name"])]; fail {
				writeGraphError(w, http.StatusBadRequest, code, "Template name does not exist in the translation")
				return
			}
		}
		g.nextID++
		_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","contacts":[{"input":%q,"wa_id":%q}],"messages":[{"id":"wamid.%d"}]}`,
			req.Body["to"], req.Body["to"], g.nextID)
	case len(parts) == 3 && parts[2] == "message_templates":
		_, _ = fmt.Fprint(w, `{"data":[{"name":"hello_world","language":"en_US","status":"APPROVED"}]}`)
	case len(parts) == 3 && parts[2] == "whatsapp_business_profile":
		_, _ = fmt.Fprint(w, `{"data":[{"about":"Trafikkvakt","messaging_product":"whatsapp"}]}`)
	default:
		writeGraphError(w, http.StatusNotFound, 100, "Unknown path components")
	}
}

func writeGraphError(w http.ResponseWriter, status, code int, msg string) {
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"message":%q,"type":"OAuthException","code":%d,"fbtrace_id":"trace"}}`, msg, code)
}
