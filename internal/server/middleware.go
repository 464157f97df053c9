package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/identity"
)

// statusClientClosed is logged when the caller went away mid-request.
const statusClientClosed = 499

// requireStudent verifies the bearer token and carries the student id on
// the request context.
func (s *Server) requireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.BearerToken(c.GetHeader("Authorization"))
		studentID, err := s.verifier.Verify(token)
		if err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(identity.WithStudent(c.Request.Context(), studentID))
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		kv := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		}
		if id, ok := identity.StudentFrom(c.Request.Context()); ok {
			kv = append(kv, "student_id", id)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.log.Warn("request", kv...)
			return
		}
		s.log.Debug("request", kv...)
	}
}

// APIError is the body of every failed response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// fail writes err as an error envelope. Retryable and internal failures
// get a generic message; their detail goes to the log only.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	msg := err.Error()

	switch {
	case errors.Is(err, context.Canceled):
		status, code, msg = statusClientClosed, "canceled", "request canceled"
	case errors.Is(err, context.DeadlineExceeded) && apperr.KindOf(err) == apperr.KindInternal:
		status, code, msg = http.StatusGatewayTimeout, apperr.CodeTimeout, "request timed out, retry later"
	case apperr.Retryable(err):
		s.log.Warn("retryable failure", "route", c.FullPath(), "code", code, "error", err)
		msg = "temporarily unavailable, retry later"
	case apperr.KindOf(err) == apperr.KindInternal:
		s.log.Error("internal failure", "route", c.FullPath(), "error", err)
		code, msg = "internal", "internal error"
	}
	if code == "" {
		code = apperr.KindOf(err).String()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Code: code, Message: msg}})
}
