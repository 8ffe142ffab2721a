package state

import "path/filepath"

const defaultConfigFileName = "config.json"

// GlobalOptions contains global config values that apply for all cdptab sub-commands.
type GlobalOptions struct {
	ConfigFilePath string
	NoColor        bool
	LogOutput      string
	LogFormat      string
	Verbose        bool
}

// GetDefaultGlobalOptions returns the default global flags.
func GetDefaultGlobalOptions(confDir string) GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: filepath.Join(confDir, "cdptab", defaultConfigFileName),
		LogOutput:      "stderr",
	}
}

// ConsolidateGlobalOptions applies the CDPTAB_* variables of env on top of
// defaultFlags. CLI flags are parsed later and win over both.
func ConsolidateGlobalOptions(defaultFlags GlobalOptions, env map[string]string) GlobalOptions {
	result := defaultFlags

	if val, ok := env["CDPTAB_CONFIG"]; ok {
		result.ConfigFilePath = val
	}
	if val, ok := env["CDPTAB_LOG_OUTPUT"]; ok {
		result.LogOutput = val
	}
	if val, ok := env["CDPTAB_LOG_FORMAT"]; ok {
		result.LogFormat = val
	}
	if env["CDPTAB_NO_COLOR"] != "" {
		result.NoColor = true
	}
	// Support https://no-color.org/, even an empty value should disable the
	// color output.
	if _, ok := env["NO_COLOR"]; ok {
		result.NoColor = true
	}
	return result
}
