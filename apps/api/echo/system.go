package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/events"
)

var (
	NowFunc = time.Now // mockable

	sseKeepAlive = 30 * time.Second
)

type (
	systemApi struct {
		conf        *core.Config
		svc         *duty.Service
		broker      *events.Broker
		diagnostics func() map[string]interface{}
	}

	DataVersionResponse struct {
		LastUpdate time.Time `json:"lastUpdate"`
		Timestamp  time.Time `json:"timestamp"`
	}
)

func registerSystemAPI(
	g *echo.Group,
	conf *core.Config,
	svc *duty.Service,
	broker *events.Broker,
	diagnostics func() map[string]interface{},
) {
	api := systemApi{
		conf:        conf,
		svc:         svc,
		broker:      broker,
		diagnostics: diagnostics,
	}

	g.GET("/health", api.health)
	g.GET("/data-version", api.dataVersion)
	g.GET("/events", api.events)
}

// Handlers

func (api *systemApi) health(ctx echo.Context) error {
	environment := "development"
	if api.conf.Env == "PROD" {
		environment = "production"
	}
	res := echo.Map{
		"status":      "OK",
		"timestamp":   NowFunc().UTC(),
		"port":        api.conf.Server.Port,
		"goVersion":   runtime.Version(),
		"build":       api.conf.Build,
		"environment": environment,
		"pid":         os.Getpid(),
	}
	if api.broker != nil {
		res["sseClients"] = api.broker.Count()
	}
	for key, val := range api.diagnostics() {
		res[key] = val
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *systemApi) dataVersion(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, DataVersionResponse{
		LastUpdate: api.svc.DataVersion(),
		Timestamp:  NowFunc().UTC(),
	})
}

// events streams broker events as server-sent events until the client goes away.
func (api *systemApi) events(ctx echo.Context) error {
	if api.broker == nil {
		return errors.New("real-time updates are not available")
	}
	client := api.broker.Subscribe()
	defer api.broker.Unsubscribe(client)

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case evt, ok := <-client.Events:
			if !ok { // dropped by the broker
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return errors.Wrap(err, "encoding event")
			}
			if _, err = fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
