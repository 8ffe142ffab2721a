package errext

import (
	"errors"
)

// Format formats the given error as a message (string) and a map of fields.
// In case of [HasHint], it adds the hint as a field. In case of
// [HasExitCode], it adds the exit code.
func Format(err error) (string, map[string]any) {
	if err == nil {
		return "", nil
	}

	fields := make(map[string]any)
	var herr HasHint
	if errors.As(err, &herr) {
		fields["hint"] = herr.Hint()
	}
	var ecerr HasExitCode
	if errors.As(err, &ecerr) {
		fields["exitCode"] = int(ecerr.ExitCode())
	}

	return err.Error(), fields
}
