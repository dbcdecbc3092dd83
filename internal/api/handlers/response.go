package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

var validate = validator.New()

func init() {
	// 에러 메시지에 Go 필드명 대신 json 이름 사용
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details,omitempty"`
}

// ValidationError describes one rejected request field
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  codeForStatus(status),
	})
}

// respondDomainError maps a domain error chain to its HTTP status
func respondDomainError(w http.ResponseWriter, err error) {
	code := contracts.ErrorCode(err)
	status := statusForCode(code)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	respondJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// ⭐ SSOT: 도메인 에러 코드 → HTTP 상태
func statusForCode(code string) int {
	switch code {
	case contracts.CodeInvalidStrategyFamily, contracts.CodeInvalidArgument:
		return http.StatusBadRequest
	case contracts.CodeNotFound:
		return http.StatusNotFound
	case contracts.CodeDuplicateVersion, contracts.CodeNoPriorVersion, contracts.CodeTestAlreadyRunning:
		return http.StatusConflict
	case contracts.CodeConfigurationMissing, contracts.CodeSourceDataInvalid:
		return http.StatusUnprocessableEntity
	case contracts.CodeAllSourcesFailed, contracts.CodeDataUnavailable:
		return http.StatusServiceUnavailable
	case contracts.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return contracts.CodeInvalidArgument
	case http.StatusNotFound:
		return contracts.CodeNotFound
	default:
		return contracts.CodeInternal
	}
}

// decodeAndValidate reads a JSON body into req, fills `default` tags and
// runs `validate` tags. An empty body is treated as {}.
func decodeAndValidate(r *http.Request, req interface{}) []ValidationError {
	if r.Body != nil {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
			return []ValidationError{{Code: "ERR_BODY", Message: "Invalid request body: " + err.Error()}}
		}
	}
	return defaultsAndValidate(r, req)
}

func defaultsAndValidate(r *http.Request, req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	if err := validate.StructCtx(r.Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func validationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func respondValidation(w http.ResponseWriter, errs []ValidationError) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request",
		Code:    contracts.CodeInvalidArgument,
		Details: errs,
	})
}
