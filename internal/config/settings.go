package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"shotwatch/internal/config/keys"
)

const (
	EnvConfigPath = "SHOTWATCH_CONFIG"
	EnvToken      = "SHOTWATCH_TOKEN"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Settings struct {
	Watch   WatchSettings
	Trigger TriggerSettings
	Capture CaptureSettings
	Server  ServerSettings
	Log     LogSettings
	OTel    OTelSettings
}

type WatchSettings struct {
	Tier       int64
	ModernPath string
	LegacyPath string
}

type TriggerSettings struct {
	CooldownMS int64
}

type CaptureSettings struct {
	Command   string
	Args      []string
	Format    string
	Display   int64
	TimeoutMS int64
}

type ServerSettings struct {
	Addr        string
	Token       string
	NotifyRate  float64
	NotifyBurst int64
}

type LogSettings struct {
	Level string
}

type OTelSettings struct {
	Endpoint           string
	ServiceName        string
	ResourceAttributes string
}

// Load layers the embedded defaults, the file at path (if it exists) and
// overrides, in that order. A blank path skips the file layer.
func Load(path string, overrides map[string]any) (Settings, error) {
	defaults, err := keys.DecodeTOML(defaultsTOML)
	if err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}
	merged := defaults.Flat()

	if strings.TrimSpace(path) != "" {
		fileStore, ok, err := readFile(path)
		if err != nil {
			return Settings{}, err
		}
		if ok {
			for key, value := range fileStore.Flat() {
				merged[key] = value
			}
		}
	}
	for key, value := range overrides {
		merged[keys.Normalize(key)] = value
	}
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		if _, overridden := overrides["server.token"]; !overridden {
			merged["server.token"] = token
		}
	}
	return build(merged)
}

// Path returns the config path from the environment, or blank.
func Path() string {
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

func readFile(path string) (keys.Store, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys.Store{}, false, nil
		}
		return keys.Store{}, false, fmt.Errorf("read config %s: %w", path, err)
	}
	var store keys.Store
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		store, err = keys.DecodeTOML(data)
	case ".yaml", ".yml":
		store, err = keys.DecodeYAML(data)
	default:
		return keys.Store{}, false, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return keys.Store{}, false, fmt.Errorf("%s: %w", path, err)
	}
	return store, true, nil
}

func build(values map[string]any) (Settings, error) {
	var settings Settings
	var errs []error
	intValue := func(key string, target *int64) {
		value, err := intSetting(values, key)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*target = value
	}

	intValue("watch.tier", &settings.Watch.Tier)
	settings.Watch.ModernPath = stringSetting(values, "watch.modern-path")
	settings.Watch.LegacyPath = stringSetting(values, "watch.legacy-path")
	intValue("trigger.cooldown-ms", &settings.Trigger.CooldownMS)
	settings.Capture.Command = stringSetting(values, "capture.command")
	settings.Capture.Format = stringSetting(values, "capture.format")
	intValue("capture.display", &settings.Capture.Display)
	intValue("capture.timeout-ms", &settings.Capture.TimeoutMS)
	args, err := stringsSetting(values, "capture.args")
	if err != nil {
		errs = append(errs, err)
	}
	settings.Capture.Args = args
	settings.Server.Addr = stringSetting(values, "server.addr")
	settings.Server.Token = stringSetting(values, "server.token")
	rate, err := floatSetting(values, "server.notify-rate")
	if err != nil {
		errs = append(errs, err)
	}
	settings.Server.NotifyRate = rate
	intValue("server.notify-burst", &settings.Server.NotifyBurst)
	settings.Log.Level = stringSetting(values, "log.level")
	settings.OTel.Endpoint = stringSetting(values, "otel.endpoint")
	settings.OTel.ServiceName = stringSetting(values, "otel.service-name")
	settings.OTel.ResourceAttributes = stringSetting(values, "otel.resource-attributes")

	if settings.Watch.Tier < 0 {
		errs = append(errs, fmt.Errorf("watch.tier must be >= 0"))
	}
	if settings.Trigger.CooldownMS < 0 {
		errs = append(errs, fmt.Errorf("trigger.cooldown-ms must be >= 0"))
	}
	if settings.Capture.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("capture.timeout-ms must be >= 0"))
	}
	if settings.Server.NotifyRate < 0 || settings.Server.NotifyBurst < 0 {
		errs = append(errs, fmt.Errorf("server.notify-rate and server.notify-burst must be >= 0"))
	}
	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return settings, nil
}

func stringSetting(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func stringsSetting(values map[string]any, key string) ([]string, error) {
	value, ok := values[key]
	if !ok || value == nil {
		return nil, nil
	}
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", key)
			}
			out = append(out, text)
		}
		return out, nil
	case string:
		return strings.Fields(typed), nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
}

func intSetting(values map[string]any, key string) (int64, error) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, nil
	}
	parsed, ok := asInt64(value)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return parsed, nil
}

func floatSetting(values map[string]any, key string) (float64, error) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", key)
		}
		return parsed, nil
	}
	if parsed, ok := asInt64(value); ok {
		return float64(parsed), nil
	}
	return 0, fmt.Errorf("%s must be a number", key)
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case uint64:
		if typed > math.MaxInt64 {
			return 0, false
		}
		return int64(typed), true
	case float64:
		if math.Trunc(typed) != typed {
			return 0, false
		}
		return int64(typed), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
