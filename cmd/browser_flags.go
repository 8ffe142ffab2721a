package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/cdptab/browser"
	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
)

func browserFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.String("backend", common.BackendCDP,
		fmt.Sprintf("browser backend, one of %s", strings.Join(browser.Backends(), ", ")))
	flags.String("binary", "", "path of the Chromium executable, searched for when empty")
	flags.Bool("headless", false, "run the launched browser headless")
	flags.Bool("disable-security", false, "disable web security and certificate checks")
	flags.Bool("deterministic-rendering", false, "add the flags that make rendering reproducible")
	flags.Bool("keep-alive", false, "leave a launched browser and created tab open on exit")
	flags.StringArray("arg", nil, "extra browser argument, can be repeated")
	flags.String("tab-url", "", "adopt the first page tab whose URL contains this text")
	flags.Int("port", common.DefaultDebugPort, "remote debugging port to adopt or launch on")
	flags.Duration("startup-timeout", common.DefaultStartupTimeout, "how long to wait for a launched browser")
	flags.String("user-data-dir", "", "browser profile directory, a temporary one when empty")
	flags.String("extension-url", common.DefaultExtensionURL, "endpoint of the extension backend")
	return flags
}

// browserConfigFromFlags returns the CLI layer of the browser config. Only
// flags that were given are Valid.
func browserConfigFromFlags(flags *pflag.FlagSet) (common.BrowserConfig, error) {
	var (
		cfg  common.BrowserConfig
		errs []error
	)
	str := func(name string, dst *null.String) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetString(name)
		errs = append(errs, err)
		*dst = null.StringFrom(v)
	}
	boolean := func(name string, dst *null.Bool) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetBool(name)
		errs = append(errs, err)
		*dst = null.BoolFrom(v)
	}

	str("backend", &cfg.Backend)
	str("binary", &cfg.BinaryPath)
	boolean("headless", &cfg.Headless)
	boolean("disable-security", &cfg.DisableSecurity)
	boolean("deterministic-rendering", &cfg.DeterministicRendering)
	boolean("keep-alive", &cfg.KeepAlive)
	str("tab-url", &cfg.TargetTabURL)
	str("user-data-dir", &cfg.UserDataDir)
	str("extension-url", &cfg.ExtensionURL)

	if flags.Changed("arg") {
		v, err := flags.GetStringArray("arg")
		errs = append(errs, err)
		cfg.ExtraArgs = v
	}
	if flags.Changed("port") {
		v, err := flags.GetInt("port")
		errs = append(errs, err)
		cfg.DebugPort = null.IntFrom(int64(v))
	}
	if flags.Changed("startup-timeout") {
		v, err := flags.GetDuration("startup-timeout")
		errs = append(errs, err)
		// BrowserConfig keeps whole seconds; round anything shorter up so a
		// small positive timeout stays positive.
		secs := int64((v + time.Second - 1) / time.Second)
		if v <= 0 {
			secs = int64(v / time.Second)
		}
		cfg.StartupTimeout = null.IntFrom(secs)
	}

	return cfg, errors.Join(errs...)
}

// readConfigFile reads the JSON config layer. A missing file at the default
// location is not an error.
func readConfigFile(gs *state.GlobalState) (common.BrowserConfig, error) {
	path := gs.Flags.ConfigFilePath
	data, err := afero.ReadFile(gs.FS, path)
	if errors.Is(err, fs.ErrNotExist) && path == gs.DefaultFlags.ConfigFilePath {
		return common.BrowserConfig{}, nil
	}
	if err != nil {
		return common.BrowserConfig{}, fmt.Errorf("reading config file %q: %w", path, err)
	}
	cfg, err := common.BrowserConfigFromJSON(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// getBrowserOptions consolidates defaults, the config file, the environment
// and the CLI flags, in that order of precedence.
func getBrowserOptions(gs *state.GlobalState, flags *pflag.FlagSet) (*common.BrowserOptions, error) {
	fileConf, err := readConfigFile(gs)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	envConf, err := common.BrowserConfigFromEnv(gs.LookupEnv)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	cliConf, err := browserConfigFromFlags(flags)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	conf := common.NewBrowserConfig().Apply(fileConf).Apply(envConf).Apply(cliConf)
	opts, err := conf.Options(gs.LookupEnv)
	if err != nil {
		return nil, errext.WithHint(
			errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig),
			"check the --config file, the CDPTAB_* variables and the browser flags",
		)
	}
	return opts, nil
}
