package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvFileEnvVar = "CHATBENCH_ENV"

	WaitModeFixed = "fixed"
	WaitModeReady = "ready"

	DefaultAbortHotkey = "Ctrl+Alt+Q"
)

type LoadOptions struct {
	// EnvPathOverride replaces the .env discovery when set.
	EnvPathOverride    string
	PromptDirOverride  string
	OutputRootOverride string
}

type Config struct {
	TargetExe      string
	WorkspaceDir   string
	PromptDir      string
	PromptGlobs    []string
	DevToolsScript string
	OutputRoot     string
	ProfilePath    string

	SettleDelay   time.Duration
	ResponseWait  time.Duration
	LocateTimeout time.Duration
	DialogTimeout time.Duration
	DialogPoll    time.Duration
	WaitMode      string

	EnableFileLogging bool
	AbortHotkey       string
	TrayEnabled       bool
	// SingleInstancePort pins the lock port; 0 scans the default range.
	SingleInstancePort int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use CHATBENCH_ENV as a path to a config file
	envPath := strings.TrimSpace(opts.EnvPathOverride)
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		TargetExe:      getEnvWithDefault("TARGET_EXE", defaultTargetExe()),
		WorkspaceDir:   os.Getenv("WORKSPACE_DIR"),
		PromptDir:      firstNonEmpty(opts.PromptDirOverride, getEnvWithDefault("PROMPT_DIR", "prompts")),
		PromptGlobs:    splitList(getEnvWithDefault("PROMPT_GLOBS", "*.txt")),
		DevToolsScript: os.Getenv("DEVTOOLS_SCRIPT"),
		OutputRoot:     firstNonEmpty(opts.OutputRootOverride, getEnvWithDefault("OUTPUT_ROOT", ".")),
		ProfilePath:    os.Getenv("PROFILE_PATH"),

		SettleDelay:   time.Duration(getEnvInt("SETTLE_DELAY_MS", 2000, 0)) * time.Millisecond,
		ResponseWait:  time.Duration(getEnvInt("RESPONSE_WAIT_SEC", 120, 0)) * time.Second,
		LocateTimeout: time.Duration(getEnvInt("LOCATE_TIMEOUT_SEC", 30, 1)) * time.Second,
		DialogTimeout: time.Duration(getEnvInt("DIALOG_TIMEOUT_SEC", 5, 1)) * time.Second,
		DialogPoll:    time.Duration(getEnvInt("DIALOG_POLL_MS", 500, 1)) * time.Millisecond,
		WaitMode:      resolveWaitMode(os.Getenv("RESPONSE_WAIT_MODE")),

		EnableFileLogging:  strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		AbortHotkey:        getEnvWithDefault("ABORT_HOTKEY", DefaultAbortHotkey),
		TrayEnabled:        strings.ToLower(os.Getenv("TRAY_ENABLED")) == "true",
		SingleInstancePort: getEnvInt("SINGLEINSTANCE_PORT", 0, 0),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func defaultTargetExe() string {
	if base := os.Getenv("LOCALAPPDATA"); base != "" {
		return filepath.Join(base, "Programs", "Microsoft VS Code", "Code.exe")
	}
	return "code"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses key as an integer >= floor, falling back to def.
func getEnvInt(key string, def, floor int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= floor {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolveWaitMode(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case WaitModeReady:
		return WaitModeReady
	default:
		return WaitModeFixed
	}
}
