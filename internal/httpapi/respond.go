package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"smartq/internal/auth"
	"smartq/internal/logging"
	"smartq/internal/queue"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// mapError translates engine and auth errors into a status code and a client-safe message.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest, "Username and password are required."
	case errors.Is(err, auth.ErrWeakCredentials):
		return http.StatusBadRequest, fmt.Sprintf("Username must be at least %d characters and password at least %d.", auth.MinUsernameLength, auth.MinPasswordLength)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password."
	case errors.Is(err, auth.ErrAlreadyConfigured):
		return http.StatusConflict, "Admin account already configured."
	case errors.Is(err, auth.ErrNotAuthorized):
		return http.StatusUnauthorized, "Not authorized"
	case errors.Is(err, auth.ErrAdminNotFound):
		return http.StatusUnauthorized, "Admin not found"
	}

	var qerr *queue.Error
	if !errors.As(err, &qerr) {
		return http.StatusInternalServerError, "Internal server error"
	}
	switch qerr.Kind {
	case queue.KindValidation, queue.KindInvalidState:
		return http.StatusBadRequest, qerr.Message
	case queue.KindNotFound:
		return http.StatusNotFound, qerr.Message
	case queue.KindConflict:
		return http.StatusConflict, qerr.Message
	default:
		return http.StatusInternalServerError, queue.MessageOf(err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, message)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// decodeRequest reads an optional JSON body into target and validates it. An empty
// body leaves target at its zero value. It writes the 400 response itself.
func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return false
		}
	}
	if err := getValidator().Struct(target); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request payload"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
