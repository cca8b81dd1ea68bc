package echoapi

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/notification"
	"github.com/trezcool/trafikkvakt/services/whatsapp"
)

const previewLength = 100

var (
	dateSpecialChars   = regexp.MustCompile(`[^\w\s.]`)
	dutiesSpecialChars = regexp.MustCompile(`[^\w\s.\-]`)
)

type (
	whatsappApi struct {
		client    *whatsappsvc.Client
		scheduler *notification.Scheduler
	}

	SendRequest struct {
		Message   string `json:"message"`
		Recipient string `json:"recipient"`
	}

	SendTemplateRequest struct {
		TemplateName string                  `json:"templateName"`
		LanguageCode string                  `json:"languageCode"`
		Components   []whatsappsvc.Component `json:"components"`
		Recipient    string                  `json:"recipient"`
	}

	ResultResponse struct {
		Success bool                    `json:"success"`
		Message string                  `json:"message"`
		Result  notification.SendResult `json:"result"`
	}

	textParameter struct {
		Value           string `json:"value"`
		Length          int    `json:"length"`
		Lines           int    `json:"lines,omitempty"`
		HasSpecialChars bool   `json:"hasSpecialChars"`
	}
)

func registerWhatsAppAPI(g *echo.Group, admin echo.MiddlewareFunc, client *whatsappsvc.Client, scheduler *notification.Scheduler) {
	api := whatsappApi{
		client:    client,
		scheduler: scheduler,
	}

	wg := g.Group("/whatsapp-business", admin)
	wg.GET("/status", api.status)
	wg.POST("/connect", api.connect)
	wg.POST("/send", api.send)
	wg.POST("/send-template", api.sendTemplate)
	wg.POST("/test-template", api.testTemplate)
	wg.POST("/test-custom-template", api.testCustomTemplate)
	wg.GET("/template-preview", api.templatePreview)
	wg.POST("/test-basic-template", api.testBasicTemplate)
	wg.POST("/send-today", api.sendToday)
	wg.GET("/message/today", api.todayMessage)
	wg.GET("/templates", api.templates)
	wg.GET("/profile", api.profile)
	wg.POST("/test", api.test)
}

// Handlers

func (api *whatsappApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.client.Status())
}

func (api *whatsappApi) connect(ctx echo.Context) error {
	if _, err := api.client.Connect(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": "WhatsApp Business API connected successfully",
		"status":  api.client.Status(),
	})
}

func (api *whatsappApi) send(ctx echo.Context) error {
	var data SendRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendRequest")
	}
	if strings.TrimSpace(data.Message) == "" {
		return core.NewValidationError(errors.New("Message is required"))
	}

	res, err := api.client.SendText(ctx.Request().Context(), data.Message, data.Recipient)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *whatsappApi) sendTemplate(ctx echo.Context) error {
	var data SendTemplateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendTemplateRequest")
	}
	if data.TemplateName = core.CleanString(data.TemplateName); data.TemplateName == "" {
		return core.NewValidationError(errors.New("Template name is required"))
	}

	res, err := api.client.SendTemplate(ctx.Request().Context(), data.TemplateName, data.LanguageCode, data.Components, data.Recipient)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *whatsappApi) testTemplate(ctx echo.Context) error {
	res, err := api.client.SendHelloWorld(ctx.Request().Context(), "")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *whatsappApi) testCustomTemplate(ctx echo.Context) error {
	duties, now, err := api.scheduler.TodaysDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	dateText, dutiesText := notification.DateText(now), notification.DutiesText(duties)

	res, err := api.client.SendDutiesTemplate(ctx.Request().Context(), dateText, dutiesText, "")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "Custom template test sent successfully",
		"result":      res,
		"dutiesCount": len(duties),
		"templateData": echo.Map{
			"dateText":   dateText,
			"dutiesText": truncate(dutiesText, previewLength),
		},
	})
}

func (api *whatsappApi) templatePreview(ctx echo.Context) error {
	duties, now, err := api.scheduler.TodaysDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	dateText, dutiesText := notification.DateText(now), notification.DutiesText(duties)

	return ctx.JSON(http.StatusOK, echo.Map{
		"todayName":   notification.DayName(now),
		"dutiesCount": len(duties),
		"rawDuties":   duties,
		"templateParameters": echo.Map{
			"dateText": textParameter{
				Value:           dateText,
				Length:          utf8.RuneCountInString(dateText),
				HasSpecialChars: dateSpecialChars.MatchString(dateText),
			},
			"dutiesText": textParameter{
				Value:           dutiesText,
				Length:          utf8.RuneCountInString(dutiesText),
				Lines:           strings.Count(dutiesText, "\n") + 1,
				HasSpecialChars: dutiesSpecialChars.MatchString(dutiesText),
			},
		},
	})
}

// testBasicTemplate sends the duties template with the placeholder values it was approved with.
func (api *whatsappApi) testBasicTemplate(ctx echo.Context) error {
	res, err := api.client.SendDutiesTemplate(ctx.Request().Context(), "Hhh", "Hhh", "")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ResultResponse{Success: true, Message: "Basic template test sent successfully", Result: res})
}

// sendToday announces today's duties with hello_world, the only template
// the provider delivers before the recipient has answered.
func (api *whatsappApi) sendToday(ctx echo.Context) error {
	duties, _, err := api.scheduler.TodaysDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	res, err := api.client.SendHelloWorld(ctx.Request().Context(), "")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "Today's duty notification sent via WhatsApp Business API (template)",
		"messageId":   res.MessageID,
		"dutiesCount": len(duties),
		"sentAt":      res.Timestamp,
		"note":        "Template message sent - custom messages require user response first",
	})
}

func (api *whatsappApi) todayMessage(ctx echo.Context) error {
	duties, now, err := api.scheduler.TodaysDuties(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":     notification.TodayMessage(duties, now),
		"isEmpty":     len(duties) == 0,
		"dutiesCount": len(duties),
		"dayName":     notification.DayName(now),
		"duties":      duties,
	})
}

func (api *whatsappApi) templates(ctx echo.Context) error {
	raw, err := api.client.MessageTemplates(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSONBlob(http.StatusOK, raw)
}

func (api *whatsappApi) profile(ctx echo.Context) error {
	raw, err := api.client.BusinessProfile(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSONBlob(http.StatusOK, raw)
}

func (api *whatsappApi) test(ctx echo.Context) error {
	now := notification.NowFunc().In(api.scheduler.Location())
	msg := "🧪 WhatsApp Business API Test\n\nThis is a test message from Trafikkvakt.\n\nSent at: " + now.Format("2.1.2006, 15:04:05")

	res, err := api.client.SendText(ctx.Request().Context(), msg, "")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ResultResponse{Success: true, Message: "Test message sent successfully", Result: res})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
