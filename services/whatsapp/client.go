package whatsappsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/notification"
)

// Connection states
const (
	StatusDisconnected = "disconnected"
	StatusReady        = "ready"
	StatusError        = "error"
)

// ErrCodeTemplateNotFound is the provider error for a missing or unapproved template.
const ErrCodeTemplateNotFound = 131026

const (
	serviceName = "whatsapp-business-api"
	userAgent   = "TrafikkvaktBot/1.0"
)

var NowFunc = time.Now // mockable

type (
	// APIError is an error answered by the Graph API.
	APIError struct {
		StatusCode int    `json:"-"`
		Code       int    `json:"code"`
		Type       string `json:"type"`
		Message    string `json:"message"`
		FBTraceID  string `json:"fbtrace_id"`
	}

	Parameter struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}

	Component struct {
		Type       string      `json:"type"`
		Parameters []Parameter `json:"parameters,omitempty"`
	}

	PhoneInfo struct {
		ID                 string `json:"id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
	}

	Status struct {
		Status          string `json:"status"`
		IsReady         bool   `json:"isReady"`
		Service         string `json:"service"`
		PhoneNumberID   string `json:"phoneNumberId"`
		RecipientNumber string `json:"recipientNumber"`
		HasCredentials  bool   `json:"hasCredentials"`
	}

	language struct {
		Code string `json:"code"`
	}

	template struct {
		Name       string      `json:"name"`
		Language   language    `json:"language"`
		Components []Component `json:"components,omitempty"`
	}

	text struct {
		Body string `json:"body"`
	}

	outgoingMessage struct {
		MessagingProduct string    `json:"messaging_product"`
		To               string    `json:"to"`
		Type             string    `json:"type"`
		Template         *template `json:"template,omitempty"`
		Text             *text     `json:"text,omitempty"`
	}

	sendResponse struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}

	// Client talks to the WhatsApp Business Cloud API.
	Client struct {
		conf    core.WhatsAppConfig
		baseURL string
		http    *rest.Client
		logger  core.Logger

		mu     sync.RWMutex
		status string
		phone  PhoneInfo
	}
)

var _ notification.Messenger = (*Client)(nil)

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (Code: %d)", e.Message, e.Code)
}

// IsTemplateNotFound reports whether err is the provider's missing template error.
func IsTemplateNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeTemplateNotFound
}

func NewClient(conf core.WhatsAppConfig, logger core.Logger) *Client {
	return &Client{
		conf:    conf,
		baseURL: strings.TrimRight(conf.BaseURL, "/") + "/" + conf.APIVersion,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		logger:  logger,
		status:  StatusDisconnected,
	}
}

// FormatPhoneNumber drops a leading "+".
func FormatPhoneNumber(number string) string {
	return strings.TrimPrefix(core.CleanString(number), "+")
}

func (c *Client) hasCredentials() bool {
	return c.conf.AccessToken != "" && c.conf.PhoneNumberID != "" && c.conf.RecipientNumber != ""
}

func (c *Client) checkConfig() error {
	switch {
	case c.conf.AccessToken == "":
		return errors.New("WhatsApp Access Token not configured. Please set WHATSAPP_ACCESS_TOKEN environment variable.")
	case c.conf.PhoneNumberID == "":
		return errors.New("WhatsApp Phone Number ID not configured. Please set WHATSAPP_PHONE_NUMBER_ID environment variable.")
	case c.conf.RecipientNumber == "":
		return errors.New("WhatsApp Recipient Number not configured. Please set WHATSAPP_RECIPIENT_NUMBER environment variable.")
	}
	return nil
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Status:          c.status,
		IsReady:         c.status == StatusReady,
		Service:         serviceName,
		PhoneNumberID:   c.conf.PhoneNumberID,
		RecipientNumber: c.conf.RecipientNumber,
		HasCredentials:  c.hasCredentials(),
	}
}

func (c *Client) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Client) request(method rest.Method, path string, body interface{}, query map[string]string) (rest.Request, error) {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.conf.AccessToken,
			"Accept":        "application/json",
			"Content-Type":  "application/json",
			"User-Agent":    userAgent,
		},
		QueryParams: query,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, errors.Wrap(err, "encoding request body")
		}
		req.Body = data
	}
	return req, nil
}

// do sends the request and decodes a successful answer into out.
func (c *Client) do(ctx context.Context, req rest.Request, out interface{}) error {
	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, "calling WhatsApp Business API")
	}
	if res.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error APIError `json:"error"`
		}
		if jErr := json.Unmarshal([]byte(res.Body), &body); jErr != nil || body.Error.Message == "" {
			body.Error.Message = http.StatusText(res.StatusCode)
		}
		body.Error.StatusCode = res.StatusCode
		return &body.Error
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(res.Body), out), "decoding WhatsApp Business API response")
}

// Connect checks the credentials against the phone number endpoint.
func (c *Client) Connect(ctx context.Context) (PhoneInfo, error) {
	if err := c.checkConfig(); err != nil {
		return PhoneInfo{}, err
	}
	req, err := c.request(rest.Get, "/"+c.conf.PhoneNumberID, nil, nil)
	if err != nil {
		return PhoneInfo{}, err
	}
	var info PhoneInfo
	if err = c.do(ctx, req, &info); err != nil {
		c.setStatus(StatusError)
		return PhoneInfo{}, errors.Wrap(err, "WhatsApp Business API connection failed")
	}

	c.mu.Lock()
	c.status, c.phone = StatusReady, info
	c.mu.Unlock()
	c.logger.Info("connected to WhatsApp Business API", map[string]interface{}{
		"id":                   info.ID,
		"display_phone_number": info.DisplayPhoneNumber,
		"verified_name":        info.VerifiedName,
	})
	return info, nil
}

// ensureReady connects on first use.
func (c *Client) ensureReady(ctx context.Context) error {
	c.mu.RLock()
	ready := c.status == StatusReady
	c.mu.RUnlock()
	if ready {
		return nil
	}
	_, err := c.Connect(ctx)
	return err
}

func (c *Client) send(ctx context.Context, msg outgoingMessage, recipient string) (notification.SendResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return notification.SendResult{}, err
	}
	if recipient == "" {
		recipient = c.conf.RecipientNumber
	}
	msg.MessagingProduct = "whatsapp"
	msg.To = FormatPhoneNumber(recipient)
	if msg.To == "" {
		return notification.SendResult{}, core.NewValidationError(errors.New("No recipient number specified"))
	}

	req, err := c.request(rest.Post, "/"+c.conf.PhoneNumberID+"/messages", msg, nil)
	if err != nil {
		return notification.SendResult{}, err
	}
	var res sendResponse
	if err = c.do(ctx, req, &res); err != nil {
		return notification.SendResult{}, err
	}
	if len(res.Messages) == 0 {
		return notification.SendResult{}, errors.New("WhatsApp Business API returned no message id")
	}

	result := notification.SendResult{
		Success:   true,
		MessageID: res.Messages[0].ID,
		Recipient: msg.To,
		Timestamp: NowFunc().UTC(),
	}
	if msg.Template != nil {
		result.Template = msg.Template.Name
	}
	return result, nil
}

// SendText sends a free-text message. The provider only delivers these inside an open conversation.
func (c *Client) SendText(ctx context.Context, message, recipient string) (notification.SendResult, error) {
	res, err := c.send(ctx, outgoingMessage{Type: "text", Text: &text{Body: message}}, recipient)
	return res, errors.Wrap(err, "Failed to send WhatsApp message")
}

func (c *Client) SendTemplate(ctx context.Context, name, languageCode string, components []Component, recipient string) (notification.SendResult, error) {
	if languageCode == "" {
		languageCode = notification.HelloWorldLanguage
	}
	msg := outgoingMessage{
		Type:     "template",
		Template: &template{Name: name, Language: language{Code: languageCode}, Components: components},
	}
	res, err := c.send(ctx, msg, recipient)
	return res, errors.Wrapf(err, "Failed to send template %s", name)
}

func (c *Client) SendHelloWorld(ctx context.Context, recipient string) (notification.SendResult, error) {
	return c.SendTemplate(ctx, notification.HelloWorldTemplate, notification.HelloWorldLanguage, nil, recipient)
}

// SendDutiesTemplate sends the daily duties template, falling back to hello_world
// when the provider does not know the template. A failed fallback is a *notification.FallbackError.
func (c *Client) SendDutiesTemplate(ctx context.Context, dateText, dutiesText, recipient string) (notification.SendResult, error) {
	components := []Component{{
		Type: "body",
		Parameters: []Parameter{
			{Type: "text", Text: dateText},
			{Type: "text", Text: dutiesText},
		},
	}}
	res, err := c.SendTemplate(ctx, notification.DutiesTemplate, notification.DutiesLanguage, components, recipient)
	if err != nil && IsTemplateNotFound(err) {
		c.logger.Warn("duties template not available, sending hello_world", err)
		if res, err = c.SendHelloWorld(ctx, recipient); err != nil {
			return res, &notification.FallbackError{Err: err}
		}
	}
	return res, err
}

// MessageTemplates lists the templates of the business account.
func (c *Client) MessageTemplates(ctx context.Context) (json.RawMessage, error) {
	if c.conf.BusinessAccountID == "" {
		return nil, errors.New("WhatsApp Business Account ID not configured. Please set WHATSAPP_BUSINESS_ACCOUNT_ID environment variable.")
	}
	if c.conf.AccessToken == "" {
		return nil, c.checkConfig()
	}
	req, err := c.request(rest.Get, "/"+c.conf.BusinessAccountID+"/message_templates", nil, nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	return out, errors.Wrap(c.do(ctx, req, &out), "getting message templates")
}

// BusinessProfile returns the WhatsApp business profile of the phone number.
func (c *Client) BusinessProfile(ctx context.Context) (json.RawMessage, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	query := map[string]string{"fields": "about,address,description,email,profile_picture_url,websites,vertical"}
	req, err := c.request(rest.Get, "/"+c.conf.PhoneNumberID+"/whatsapp_business_profile", nil, query)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	return out, errors.Wrap(c.do(ctx, req, &out), "getting business profile")
}
