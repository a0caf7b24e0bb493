package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"askrelay/internal/models"
	"askrelay/internal/provider"
)

const (
	msgMethodNotAllowed   = "Method Not Allowed. Use POST."
	msgServerConfig       = "Server configuration error."
	msgMalformedBody      = `Invalid request body. Expected JSON with a "prompt" field.`
	msgMissingPrompt      = "Prompt is required and must be a non-empty string."
	msgNetworkError       = "Network error. Please check your connection."
	msgServiceUnavailable = "Sorry, the AI service is currently unavailable."
)

// Outcome labels used for errors and metrics.
const (
	typeMethodNotAllowed = "method_not_allowed"
	typeInvalidRequest   = "invalid_request_error"
	typeServerError      = "server_error"
	typeUpstreamError    = "upstream_error"
)

var (
	errMethodNotAllowed = requestError{Status: http.StatusMethodNotAllowed, Message: msgMethodNotAllowed, Type: typeMethodNotAllowed}
	errServerConfig     = requestError{Status: http.StatusInternalServerError, Message: msgServerConfig, Type: typeServerError}
	errMalformedBody    = requestError{Status: http.StatusBadRequest, Message: msgMalformedBody, Type: typeInvalidRequest}
	errMissingPrompt    = requestError{Status: http.StatusBadRequest, Message: msgMissingPrompt, Type: typeInvalidRequest}
)

func (s *Server) handleAsk(c echo.Context) error {
	outcome := "ok"
	err := s.ask(c)
	if err != nil {
		outcome = typeServerError
		var reqErr requestError
		if errors.As(err, &reqErr) {
			outcome = reqErr.Type
		}
	} else if c.Request().Method == http.MethodOptions {
		outcome = "preflight"
	}
	s.metrics.ObserveRequest(outcome)
	return err
}

func (s *Server) ask(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodOptions:
		return c.NoContent(http.StatusOK)
	case http.MethodPost:
	default:
		return errMethodNotAllowed
	}

	if err := s.relay.CheckConfig(); err != nil {
		slog.Error("relay configuration error", "error", err, "request_id", requestID(c))
		return errServerConfig
	}

	prompt, err := decodePrompt(c)
	if err != nil {
		return err
	}

	completion, err := s.relay.Ask(c.Request().Context(), prompt)
	if err != nil {
		return s.upstreamFailure(c, err)
	}

	return c.JSON(http.StatusOK, models.AskResponse{
		Reply:     completion.Text,
		ModelUsed: completion.Model,
	})
}

// decodePrompt reads a single JSON value from the body and extracts a
// non-blank string "prompt" field. The prompt is returned untrimmed.
func decodePrompt(c echo.Context) (string, error) {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return "", errMalformedBody
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return "", errMalformedBody
	}
	if payload == nil {
		return "", errMalformedBody
	}

	body, ok := payload.(map[string]any)
	if !ok {
		return "", errMissingPrompt
	}
	prompt, ok := body["prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return "", errMissingPrompt
	}
	return prompt, nil
}

func (s *Server) upstreamFailure(c echo.Context, err error) error {
	if errors.Is(err, provider.ErrMissingCredential) {
		slog.Error("relay configuration error", "error", err, "request_id", requestID(c))
		return errServerConfig
	}

	upErr := provider.AsUpstreamError(err)
	slog.Error("upstream request failed",
		"kind", upErr.Kind.String(),
		"status", upErr.Status,
		"detail", upErr.Detail,
		"error", upErr.Err,
		"model", s.relay.Model(),
		"request_id", requestID(c),
	)
	return toHTTPError(upErr)
}

// toHTTPError maps an upstream failure to a client-safe response.
func toHTTPError(upErr *provider.UpstreamError) requestError {
	switch upErr.Kind {
	case provider.KindHTTPStatus:
		status := http.StatusBadGateway
		if upErr.Status >= 400 && upErr.Status <= 599 {
			status = upErr.Status
		}
		return requestError{
			Status:  status,
			Message: fmt.Sprintf("API Error: %d. Please try again.", upErr.Status),
			Type:    typeUpstreamError,
		}
	case provider.KindUnreachable:
		return requestError{Status: http.StatusBadGateway, Message: msgNetworkError, Type: typeUpstreamError}
	case provider.KindEmptyResponse, provider.KindUnknown:
		return requestError{Status: http.StatusBadGateway, Message: msgServiceUnavailable, Type: typeUpstreamError}
	default:
		return requestError{Status: http.StatusBadGateway, Message: msgServiceUnavailable, Type: typeUpstreamError}
	}
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message string) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, models.ErrorResponse{Error: message})
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusMethodNotAllowed {
			_ = writeError(c, he.Code, msgMethodNotAllowed)
			return
		}
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			message = m
		}
		_ = writeError(c, he.Code, message)
		return
	}

	slog.Error("unhandled error", "error", err, "request_id", requestID(c))
	_ = writeError(c, http.StatusInternalServerError, "Internal server error.")
}
