package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of key, or fallback if the variable is
// unset, empty, or not parseable by strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvUint64 returns a pointer to the unsigned value of key, nil when the
// variable is unset or empty, and an error when it is set but invalid.
func GetEnvUint64(key string) (*uint64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an unsigned integer", key, s)
	}
	return &n, nil
}

// Settings is the effective configuration of one encoder run.
type Settings struct {
	EPGStationURL string
	WorkDir       string
	FFmpegPath    string
	FFprobePath   string

	QueryHalfWidth bool
	QueryRuleID    *uint64
	QueryChannelID *uint64
	QueryReverse   *bool
	QueryLimit     int

	OnlyRecordedID *uint64
	SourceFileType string

	UploadParentDir string
	UploadSubDir    string
	UploadViewName  string
	UploadFileType  string

	StatusAddr string
	LogLevel   string
	LogFormat  string
}

// LoadSettings reads Settings from the environment and validates them.
func LoadSettings() (Settings, error) {
	s := Settings{
		EPGStationURL:   GetEnv("EPGSTATION_URL", "http://localhost:8888"),
		WorkDir:         GetEnv("WORK_DIR", "."),
		FFmpegPath:      GetEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     GetEnv("FFPROBE_PATH", "ffprobe"),
		QueryHalfWidth:  GetEnvBool("QUERY_HALF_WIDTH", false),
		QueryLimit:      GetEnvInt("QUERY_LIMIT", 1_000_000),
		SourceFileType:  GetEnv("SOURCE_FILE_TYPE", "ts"),
		UploadParentDir: GetEnv("UPLOAD_PARENT_DIR", "recorded"),
		UploadSubDir:    os.Getenv("UPLOAD_SUB_DIR"),
		UploadViewName:  GetEnv("UPLOAD_VIEW_NAME", "AV1"),
		UploadFileType:  GetEnv("UPLOAD_FILE_TYPE", "encoded"),
		StatusAddr:      os.Getenv("STATUS_ADDR"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "text"),
	}

	var err error
	if s.QueryRuleID, err = GetEnvUint64("QUERY_RULE_ID"); err != nil {
		return Settings{}, err
	}
	if s.QueryChannelID, err = GetEnvUint64("QUERY_CHANNEL_ID"); err != nil {
		return Settings{}, err
	}
	if s.OnlyRecordedID, err = GetEnvUint64("ONLY_RECORDED_ID"); err != nil {
		return Settings{}, err
	}
	if v := os.Getenv("QUERY_REVERSE"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return Settings{}, fmt.Errorf("QUERY_REVERSE: %q is not a boolean", v)
		}
		s.QueryReverse = &b
	}

	return s, s.Validate()
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.EPGStationURL) == "" {
		return fmt.Errorf("EPGSTATION_URL must not be empty")
	}
	if s.QueryLimit <= 0 {
		return fmt.Errorf("QUERY_LIMIT must be positive, got %d", s.QueryLimit)
	}
	if s.WorkDir == "" {
		return fmt.Errorf("WORK_DIR must not be empty")
	}
	if s.UploadParentDir == "" || s.UploadViewName == "" || s.UploadFileType == "" {
		return fmt.Errorf("UPLOAD_PARENT_DIR, UPLOAD_VIEW_NAME and UPLOAD_FILE_TYPE must not be empty")
	}
	return nil
}
