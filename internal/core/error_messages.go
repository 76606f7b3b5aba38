package core

// error_messages.go maps technical failures to coded messages for users.
//
// Codes by category:
//
//	IMP001  roster is missing required columns
//	IMP002  too many imports in progress
//	IMP003  roster is empty
//	FILE001 file exceeds the size limit
//	FILE002 unsupported file format
//	FILE003 file content does not match its extension
//	FILE004 file could not be parsed
//	FILE005 no file provided
//	DB001   uniqueness violation
//	DB002   foreign key violation
//	DB003   store unreachable
//	DB004   store connection interrupted
//	DB005   store timeout
//	REQ001  request cancelled
//	REQ002  request deadline exceeded
//	RATE001 too many requests
//	ERR000  anything else
//
// Typed errors are checked first. Remaining errors are matched against
// lowercase substrings in table order, so specific patterns precede general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyRoster is returned when a file has no header row to resolve.
var ErrEmptyRoster = errors.New("roster is empty")

// UserMessage is a coded, user-facing description of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgMissingColumns = UserMessage{
		Message: "The file is missing required columns",
		Action:  "Add the listed columns (any accepted alias works) and upload again",
		Code:    "IMP001",
	}
	msgTooManyImports = UserMessage{
		Message: "Other imports are still running",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}
	msgEmptyRoster = UserMessage{
		Message: "The file is empty",
		Action:  "Upload a roster with a header row",
		Code:    "IMP003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ002",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the roster into smaller files", "FILE001"}},
	{"unsupported file format", UserMessage{"Only .csv and .xlsx files are accepted", "Save the roster as CSV or Excel workbook", "FILE002"}},
	{"does not match extension", UserMessage{"File content does not match its extension", "Re-export the file from your spreadsheet tool", "FILE003"}},
	{"invalid csv", UserMessage{"The file could not be read", "Check the file is a valid CSV or Excel workbook", "FILE004"}},
	{"invalid spreadsheet", UserMessage{"The file could not be read", "Check the file is a valid CSV or Excel workbook", "FILE004"}},
	{"no file provided", UserMessage{"No file was selected", "Choose a roster file to upload", "FILE005"}},

	{"duplicate key", UserMessage{"A record with this value already exists", "Remove duplicate rows and try again", "DB001"}},
	{"violates unique", UserMessage{"A record with this value already exists", "Remove duplicate rows and try again", "DB001"}},
	{"violates foreign key", UserMessage{"A referenced record does not exist", "Import the module leads first", "DB002"}},
	{"connection refused", UserMessage{"Unable to reach the database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"timeout", UserMessage{"Database operation timed out", "Please try again later", "DB005"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a coded user message. A nil error maps to the
// zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var missing *MissingColumnsError
	switch {
	case errors.As(err, &missing):
		return msgMissingColumns
	case errors.Is(err, ErrTooManyImports):
		return msgTooManyImports
	case errors.Is(err, ErrEmptyRoster):
		return msgEmptyRoster
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgDeadline
	}

	s := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(s, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: X). Action".
func FormatUserError(err error) string {
	m := MapError(err)
	if m.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", m.Message, m.Code, m.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
