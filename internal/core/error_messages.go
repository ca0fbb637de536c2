// # Error Codes Reference
//
// This file defines user-friendly messages with codes for every error the
// compiler reports. A sheet author can quote the code when asking for help.
//
// # Cell Errors (CELL001-CELL099)
//
//	CELL001 - Unknown cell type: the type row names a type that does not exist
//	          Action: Use one of the labels listed by `tablegen types`
//
//	CELL002 - Unknown visibility tag: the tag row holds an unknown tag
//	          Action: Use all, allkey, server, serverkey, client or clientkey
//
//	CELL003 - Expected string: a header cell is blank
//	          Action: Fill in every name, type and tag cell of the header
//
//	CELL004 - Malformed number: a cell does not parse as its numeric type
//	          Action: Check sign, width and decimal point of the value
//
//	CELL005 - Malformed bool: a bool cell is not 1, true, false or 0
//
//	CELL006 - Wrong component count: a vector cell has too many or too few parts
//	          Action: Separate components with ',' and groups with ';'
//
//	CELL007 - Unsupported type: dictionary cells have no syntax yet
//	          Action: Leave dictionary cells blank
//
// # Row and Table Errors (ROW001, TBL001-TBL099)
//
//	ROW001 - Row width: a row has a different number of cells than the header
//	TBL001 - Table not found
//	TBL002 - Duplicate table: two sheets share a name
//
// # Emission Errors (EMIT001)
//
//	EMIT001 - Missing key: no column of the exported table is a key column
//	          Action: Tag the id column allkey (or serverkey/clientkey)
//
// # Artifact Errors (PACK001-PACK099)
//
//	PACK001 - Corrupt blob: the binary artifact is truncated or damaged
//	PACK002 - Unsupported version: the blob was written by another format version
//
// # Input and Build Errors
//
//	SHEET001 - Malformed sheet: a CSV or YAML file cannot be read as rows of cells
//	BUILD001 - No build: the preview server has not completed a build yet
//	BUILD002 - Busy: another rebuild is still running
//	PUB001   - Nothing published: no archived build exists for the audience
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// # Matching
//
// Known sentinels are matched with errors.Is first, so wrapped errors keep
// their codes. Errors from other packages that do not share a sentinel are
// then matched case-insensitively by message pattern; the first match wins.

package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages maps the compiler's sentinels to user messages.
// Order matters when a batch holds several kinds: the first kind found wins.
var sentinelMessages = []sentinelMessage{
	{ErrUnknownCellType, UserMessage{
		Message: "Unknown cell type in the header",
		Action:  "Use one of the supported type labels",
		Code:    "CELL001",
	}},
	{ErrUnknownVisibilityTag, UserMessage{
		Message: "Unknown visibility tag in the header",
		Action:  "Use all, allkey, server, serverkey, client or clientkey",
		Code:    "CELL002",
	}},
	{ErrExpectedString, UserMessage{
		Message: "A header cell is blank",
		Action:  "Fill in every name, type and tag cell of the header",
		Code:    "CELL003",
	}},
	{ErrMalformedScalar, UserMessage{
		Message: "A cell does not hold a valid number",
		Action:  "Check sign, width and decimal point of the value",
		Code:    "CELL004",
	}},
	{ErrMalformedBool, UserMessage{
		Message: "A bool cell holds something other than 1, true or false",
		Action:  "Use 1/true or 0/false",
		Code:    "CELL005",
	}},
	{ErrArityMismatch, UserMessage{
		Message: "A vector cell has the wrong number of components",
		Action:  "Separate components with ',' and groups with ';'",
		Code:    "CELL006",
	}},
	{ErrUnimplemented, UserMessage{
		Message: "Dictionary cells are not supported yet",
		Action:  "Leave dictionary cells blank",
		Code:    "CELL007",
	}},
	{ErrRowArityMismatch, UserMessage{
		Message: "A row has a different number of cells than the header",
		Action:  "Remove stray cells or fill in missing ones",
		Code:    "ROW001",
	}},
	{ErrDuplicateTable, UserMessage{
		Message: "Two sheets have the same name",
		Action:  "Rename one of the sheets",
		Code:    "TBL002",
	}},
	{ErrMissingPrimaryKey, UserMessage{
		Message: "The exported table has no key column",
		Action:  "Tag the id column allkey, serverkey or clientkey",
		Code:    "EMIT001",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors raised outside this package.
var errorPatterns = []errorPattern{
	{
		pattern: "corrupt blob",
		msg: UserMessage{
			Message: "The binary artifact is damaged",
			Action:  "Rebuild config.bytes from the sheets",
			Code:    "PACK001",
		},
	},
	{
		pattern: "unsupported blob version",
		msg: UserMessage{
			Message: "The binary artifact uses another format version",
			Action:  "Rebuild config.bytes with this version of tablegen",
			Code:    "PACK002",
		},
	},
	{
		pattern: "malformed sheet",
		msg: UserMessage{
			Message: "A sheet file could not be read",
			Action:  "Re-export the sheet; YAML sheets are a list of rows or a {name, rows} mapping",
			Code:    "SHEET001",
		},
	},
	{
		pattern: "no published build",
		msg: UserMessage{
			Message: "No build has been published yet",
			Action:  "Run tablegen build with DB_PUBLISH=true",
			Code:    "PUB001",
		},
	},
	{
		pattern: "no successful build yet",
		msg: UserMessage{
			Message: "The preview has no build to show",
			Action:  "Fix the sheet errors and trigger a rebuild",
			Code:    "BUILD001",
		},
	},
	{
		pattern: "a rebuild is already running",
		msg: UserMessage{
			Message: "Another rebuild is still running",
			Action:  "Wait a few seconds and try again",
			Code:    "BUILD002",
		},
	},
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "The table does not exist",
			Action:  "Verify the table name is correct",
			Code:    "TBL001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log output for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := core.Parse(core.CellBool, "maybe")
//	msg := core.MapError(err)
//	// msg.Code == "CELL005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
