package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/fleetmon/fleetmon/internal/errors"
)

// machineMode is set by --json: output becomes a JSON envelope and
// decorations are suppressed.
var machineMode bool

// MachineMode reports whether --json is in effect.
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps every --json response.
type JSONEnvelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *JSONError `json:"error,omitempty"`
}

// JSONError is the machine-readable form of a failure.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrCodeUnknown marks errors that carry no fleetmon code.
const ErrCodeUnknown = "UNKNOWN"

// WriteJSONSuccess writes a successful envelope around data.
func WriteJSONSuccess(w io.Writer, data any) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError writes a failed envelope describing err.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts err, keeping the code and suggestion of a structured
// fleetmon error. Errors decoded from the API keep the server's code.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		return &JSONError{Code: e.Code, Message: e.Message, Suggestion: e.Suggestion}
	}
	return &JSONError{Code: ErrCodeUnknown, Message: err.Error()}
}
