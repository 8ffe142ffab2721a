// Package exitcodes contains the constants representing possible cdptab exit error codes.
package exitcodes

// ExitCode is just a type representing a process exit code for cdptab
type ExitCode uint8

// list of exit codes used by cdptab
const (
	GenericError     ExitCode = 1
	BrowserNotFound  ExitCode = 100
	NoPortAvailable  ExitCode = 101
	StartupFailed    ExitCode = 102
	ConnectionFailed ExitCode = 103
	InvalidConfig    ExitCode = 104
	ExternalAbort    ExitCode = 105
	CommandFailed    ExitCode = 106
	ScriptException  ExitCode = 107
	WaitTimeout      ExitCode = 108
	FileWriteFailed  ExitCode = 109
)
