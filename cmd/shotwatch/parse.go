package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"shotwatch/internal/capability"
	"shotwatch/internal/cli"
	"shotwatch/internal/config"
	"shotwatch/internal/logging"
)

type Config struct {
	ConfigPath  string
	Tier        string
	Addr        string
	LogLevel    string
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("shotwatch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configFlag := fs.String("config", "", "Config file, .toml or .yaml (env: SHOTWATCH_CONFIG)")
	tierFlag := fs.String("tier", "", "Capability tier: API level, \"legacy\" or \"modern\" (default from config)")
	addrFlag := fs.String("addr", "", "HTTP listen address (default from config)")
	logLevelFlag := fs.String("log-level", "", "Log level: debug, info, warning, error")
	helpVersion := cli.AddHelpVersionFlags(fs)
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if helpVersion.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helpVersion.Version {
		return Config{ShowVersion: true}, nil
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := Config{
		ConfigPath: strings.TrimSpace(*configFlag),
		Tier:       strings.TrimSpace(*tierFlag),
		Addr:       strings.TrimSpace(*addrFlag),
		LogLevel:   strings.TrimSpace(*logLevelFlag),
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = config.Path()
	}
	if cfg.Tier != "" {
		if _, ok := capability.ParseTier(cfg.Tier); !ok {
			return Config{}, fmt.Errorf("invalid --tier %q", cfg.Tier)
		}
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return Config{}, fmt.Errorf("invalid --log-level %q", cfg.LogLevel)
		}
	}
	return cfg, nil
}

// overrides maps flags that were set onto config keys.
func (cfg Config) overrides() map[string]any {
	overrides := map[string]any{}
	if cfg.Tier != "" {
		tier, _ := capability.ParseTier(cfg.Tier)
		overrides["watch.tier"] = int64(tier)
	}
	if cfg.Addr != "" {
		overrides["server.addr"] = cfg.Addr
	}
	if cfg.LogLevel != "" {
		overrides["log.level"] = cfg.LogLevel
	}
	return overrides
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: shotwatch [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watch the screenshot directory and capture the screen once per screenshot event.")
	fmt.Fprintln(out, "")
	cli.PrintOptions(out, "Options", []cli.Option{
		{Name: "--config PATH", Description: "Config file, .toml or .yaml (env: SHOTWATCH_CONFIG)"},
		{Name: "--tier TIER", Description: "Capability tier: API level, \"legacy\" or \"modern\""},
		{Name: "--addr ADDR", Description: "HTTP listen address"},
		{Name: "--log-level LEVEL", Description: "debug, info, warning or error"},
		{Name: "-h, --help", Description: "Show this help message"},
		{Name: "-v, --version", Description: "Print version and exit"},
	})
	fmt.Fprintln(out, "")
	cli.PrintOptions(out, "Environment", []cli.Option{
		{Name: config.EnvConfigPath, Description: "Config file used when --config is not given"},
		{Name: config.EnvToken, Description: "Bearer token required by the HTTP API"},
	})
}
