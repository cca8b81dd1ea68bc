package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/notification"
)

var errInvalidTime = errors.New("Invalid time format. Use HH:MM format (e.g., 07:00)")

type (
	notificationApi struct {
		scheduler *notification.Scheduler
		dutySvc   *duty.Service
	}

	ScheduleRequest struct {
		Time string `json:"time"`
	}
)

func registerNotificationAPI(g *echo.Group, admin echo.MiddlewareFunc, scheduler *notification.Scheduler, dutySvc *duty.Service) {
	api := notificationApi{
		scheduler: scheduler,
		dutySvc:   dutySvc,
	}

	ng := g.Group("/notifications", admin)
	ng.GET("/status", api.status)
	ng.POST("/test", api.test)
	ng.POST("/send-todays-duties", api.sendTodaysDuties)
	ng.PUT("/schedule", api.updateSchedule)
}

// Handlers

func (api *notificationApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.scheduler.Status())
}

func (api *notificationApi) test(ctx echo.Context) error {
	if _, err := api.scheduler.SendTest(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Test notification sent successfully"})
}

func (api *notificationApi) sendTodaysDuties(ctx echo.Context) error {
	report, err := api.scheduler.CheckAndSendTodaysDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": "Today's duties notification sent successfully",
		"report":  report,
	})
}

func (api *notificationApi) updateSchedule(ctx echo.Context) error {
	var data ScheduleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScheduleRequest")
	}
	if data.Time = core.CleanString(data.Time); !core.IsHHMM(data.Time) {
		return core.NewValidationError(errInvalidTime)
	}

	settings := duty.NotificationSettings{Time: data.Time, Enabled: api.scheduler.Status().Enabled}
	if err := api.dutySvc.PutNotificationSettings(ctx.Request().Context(), settings); err != nil {
		return err
	}
	if err := api.scheduler.UpdateSchedule(data.Time); err != nil {
		return errors.Wrap(err, "rescheduling notification")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Notification schedule updated successfully", "time": data.Time})
}
