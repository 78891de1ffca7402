package clinicapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GenericErrorMessage is used when an error carries nothing readable.
const GenericErrorMessage = "an unexpected error occurred, please try again"

const errCannotDeleteAppointmentTypes = "cannot_delete_appointment_types"

// APIError is a non-2xx response from the clinic API. Detail is either a
// string or a structured object.
type APIError struct {
	StatusCode int             `json:"-"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Msg        string          `json:"message,omitempty"`
	Body       string          `json:"-"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(body)}
	if len(bytes.TrimSpace(body)) > 0 {
		_ = json.Unmarshal(body, e)
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicapi: status %d: %s", e.StatusCode, e.message())
}

func (e *APIError) message() string {
	if msg := e.detailMessage(); msg != "" {
		return msg
	}
	if e.Msg != "" {
		return e.Msg
	}
	return GenericErrorMessage
}

type blockingAppointmentType struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Practitioners []json.RawMessage `json:"practitioners"`
}

type structuredDetail struct {
	Error            string                    `json:"error"`
	AppointmentTypes []blockingAppointmentType `json:"appointment_types"`
}

func (e *APIError) detailMessage() string {
	if len(e.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var d structuredDetail
	if err := json.Unmarshal(e.Detail, &d); err != nil {
		return ""
	}
	if d.Error == errCannotDeleteAppointmentTypes {
		return cannotDeleteMessage(d.AppointmentTypes)
	}
	return ""
}

func cannotDeleteMessage(types []blockingAppointmentType) string {
	if len(types) == 0 {
		return "Some appointment types cannot be deleted because practitioners are still assigned to them."
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("appointment type %d", t.ID)
		}
		names := practitionerNames(t.Practitioners)
		if len(names) == 0 {
			parts = append(parts, name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(names, ", ")))
	}
	return "Cannot delete appointment types that are still assigned to practitioners: " +
		strings.Join(parts, "; ") + ". Unassign the practitioners first."
}

// practitionerNames accepts plain names or member objects.
func practitionerNames(raw []json.RawMessage) []string {
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			ID       int64  `json:"id"`
			FullName string `json:"full_name"`
			Name     string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			continue
		}
		switch {
		case obj.FullName != "":
			names = append(names, obj.FullName)
		case obj.Name != "":
			names = append(names, obj.Name)
		default:
			names = append(names, fmt.Sprintf("member %d", obj.ID))
		}
	}
	return names
}

// Message extracts a user-facing message from err: structured detail first,
// then the plain detail string, then the message field, then a generic text.
// Errors that did not come from the API use their own text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.message()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericErrorMessage
}
