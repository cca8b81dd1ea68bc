package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
)

type (
	dutyApi struct {
		svc      *duty.Service
		validate *validator.Validate
	}

	SuccessResponse struct {
		Success  bool     `json:"success"`
		Warnings []string `json:"warnings,omitempty"`
	}

	AuditLogResponse struct {
		AuditLog []duty.AuditEntry `json:"auditLog"`
	}

	FromDateRequest struct {
		Date string `json:"date" validate:"required,isodate"`
	}
)

func registerDutyAPI(g *echo.Group, svc *duty.Service, validate *validator.Validate) {
	api := dutyApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/duties", api.getDuties)
	g.PUT("/duties", api.putDuties)
	g.POST("/duties/auto-fill", api.autoFill)
	g.POST("/duties/swap", api.swap)

	g.GET("/children", api.getChildren)
	g.PUT("/children", api.putChildren)
	g.GET("/crossings", api.getCrossings)
	g.PUT("/crossings", api.putCrossings)

	g.GET("/schedule", api.getSchedule)
	g.PUT("/schedule", api.putSchedule)
	g.POST("/schedule/from-date", api.scheduleFromDate)

	g.GET("/audit-log", api.getAuditLog)
	g.POST("/audit-log", api.addAuditEntry)
	g.DELETE("/audit-log", api.clearAuditLog)
}

// Handlers

func (api *dutyApi) getDuties(ctx echo.Context) error {
	t, err := api.svc.GetDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *dutyApi) putDuties(ctx echo.Context) error {
	var data duty.Table
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Table")
	}
	if data.Duties == nil {
		return core.NewFieldError("duties", "duties is required")
	}

	warnings, err := api.svc.PutDuties(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Warnings: warnings})
}

func (api *dutyApi) autoFill(ctx echo.Context) error {
	res, err := api.svc.AutoFill(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *dutyApi) swap(ctx echo.Context) error {
	var data duty.SwapRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SwapRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Swap(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *dutyApi) getChildren(ctx echo.Context) error {
	c, err := api.svc.GetChildren(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *dutyApi) putChildren(ctx echo.Context) error {
	var data duty.Children
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Children")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.PutChildren(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *dutyApi) getCrossings(ctx echo.Context) error {
	c, err := api.svc.GetCrossings(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *dutyApi) putCrossings(ctx echo.Context) error {
	var data duty.Crossings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Crossings")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.PutCrossings(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *dutyApi) getSchedule(ctx echo.Context) error {
	s, err := api.svc.GetSchedule(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *dutyApi) putSchedule(ctx echo.Context) error {
	var data duty.Schedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Schedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.PutSchedule(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *dutyApi) scheduleFromDate(ctx echo.Context) error {
	var data FromDateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FromDateRequest")
	}
	data.Date = core.CleanString(data.Date)
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	date, _ := core.ParseDate(data.Date) // validated above
	s, err := api.svc.ScheduleFromDate(ctx.Request().Context(), date)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *dutyApi) getAuditLog(ctx echo.Context) error {
	entries, err := api.svc.AuditLog(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AuditLogResponse{AuditLog: entries})
}

func (api *dutyApi) addAuditEntry(ctx echo.Context) error {
	var data duty.AuditEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AuditEntry")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if _, err := api.svc.AddAuditEntry(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *dutyApi) clearAuditLog(ctx echo.Context) error {
	if err := api.svc.ClearAuditLog(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}
