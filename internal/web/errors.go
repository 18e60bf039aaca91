package web

// errors.go maps pass and upload errors to user-facing messages.
//
// # Error Codes Reference
//
//	REC001 - Recipe version mismatch    (recipe.ErrVersionMismatch)       422
//	REC002 - Recipe malformed           (recipe.ErrMalformed)             400
//	TBL001 - Table shape invalid        (table.ErrShape, ErrDuplicateColumn, ErrEmptyColumnName, pgexport.ErrNoColumns) 400
//	FILE001 - Upload too large          (*http.MaxBytesError)             413
//	FILE002 - File unreadable           (source.ErrNoHeader, ErrRowWidth, "invalid csv") 400
//	FILE003 - File type unsupported     (source.ErrUnsupportedFormat)     415
//	FILE004 - No file                   (errNoFile)                       400
//	OPT001 - Invalid options            (engine.ErrInvalidOptions, errInvalidField) 400
//	OPT002 - Loading disabled           (errLoadDisabled)                 400
//	PASS001 - Busy                      (ErrTooManyPasses)                503
//	PASS002 - Timed out                 (context.DeadlineExceeded)        504
//	DB001  - Load failed                ("copy into", "create table")    502
//	ERR000 - Anything else                                                500
//
// Sentinels are matched with errors.Is first; message patterns are matched
// case-insensitively afterwards, first match wins.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/pgexport"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/source"
	"github.com/JonMunkholm/mlready/internal/table"
)

var (
	errNoFile       = errors.New("no file provided")
	errInvalidField = errors.New("invalid form field")
	errLoadDisabled = errors.New("database loading is not configured")
)

// UserMessage is what a client is told about an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
	Status  int
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type errorRule struct {
	targets  []error
	patterns []string
	msg      UserMessage
}

var errorRules = []errorRule{
	{
		targets: []error{recipe.ErrVersionMismatch},
		msg: UserMessage{
			Message: "The recipe was written in an unsupported format version",
			Action:  "Rebuild the recipe with this version of the service",
			Code:    "REC001",
			Status:  http.StatusUnprocessableEntity,
		},
	},
	{
		targets: []error{recipe.ErrMalformed},
		msg: UserMessage{
			Message: "The recipe could not be read",
			Action:  "Upload a recipe produced by /api/build without editing its structure",
			Code:    "REC002",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets: []error{table.ErrShape, table.ErrDuplicateColumn, table.ErrEmptyColumnName, pgexport.ErrNoColumns},
		msg: UserMessage{
			Message: "The table has duplicate or inconsistent columns",
			Action:  "Make sure every header is unique",
			Code:    "TBL001",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets:  []error{source.ErrNoHeader, source.ErrRowWidth},
		patterns: []string{"invalid csv", "open workbook", "read sheet", "multipart"},
		msg: UserMessage{
			Message: "The file could not be read as a table",
			Action:  "Upload a UTF-8 CSV or an .xlsx workbook with a header row",
			Code:    "FILE002",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets: []error{source.ErrUnsupportedFormat},
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE003",
			Status:  http.StatusUnsupportedMediaType,
		},
	},
	{
		targets: []error{errNoFile},
		msg: UserMessage{
			Message: "No file was uploaded",
			Action:  "Attach the table as the multipart field \"file\"",
			Code:    "FILE004",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets: []error{engine.ErrInvalidOptions, errInvalidField},
		msg: UserMessage{
			Message: "The request options are invalid",
			Action:  "Check the form fields against the API documentation",
			Code:    "OPT001",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets: []error{errLoadDisabled},
		msg: UserMessage{
			Message: "Loading into a database is not enabled on this server",
			Action:  "Remove the load field or configure MLREADY_DATABASE_URL",
			Code:    "OPT002",
			Status:  http.StatusBadRequest,
		},
	},
	{
		targets: []error{ErrTooManyPasses},
		msg: UserMessage{
			Message: "The server is busy with other passes",
			Action:  "Please wait a moment and try again",
			Code:    "PASS001",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		targets: []error{context.DeadlineExceeded},
		msg: UserMessage{
			Message: "The pass took too long",
			Action:  "Try a smaller file",
			Code:    "PASS002",
			Status:  http.StatusGatewayTimeout,
		},
	},
	{
		patterns: []string{"copy into", "create table"},
		msg: UserMessage{
			Message: "The clean table could not be loaded into the database",
			Action:  "Check the target table name and database availability",
			Code:    "DB001",
			Status:  http.StatusBadGateway,
		},
	},
}

var fallbackMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

var tooLarge = UserMessage{
	Message: "The upload is too large",
	Action:  "Split the file into smaller parts",
	Code:    "FILE001",
	Status:  http.StatusRequestEntityTooLarge,
}

// MapError returns the user message for err.
func MapError(err error) UserMessage {
	if err == nil {
		return fallbackMessage
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
		return tooLarge
	}

	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule.msg
			}
		}
	}

	lower := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.msg
			}
		}
	}

	return fallbackMessage
}

// respondError logs err and writes its mapped JSON form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	level := slog.LevelWarn
	if msg.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"code", msg.Code,
		"error", err.Error(),
	)

	render.Status(r, msg.Status)
	render.JSON(w, r, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
