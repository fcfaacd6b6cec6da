package env

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file. Process variables fill in
// whatever the file does not define.
var Env map[string]string

// envFileCandidates are tried in order; the binaries run from the repository
// root or from their cmd/ directory.
var envFileCandidates = []string{".env", "../../.env", "../../../.env"}

// SetupEnvFile loads ENV_FILE when set, else the first .env found.
func SetupEnvFile() {
	candidates := envFileCandidates
	if explicit := os.Getenv("ENV_FILE"); explicit != "" {
		candidates = []string{explicit}
	}
	for _, path := range candidates {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		Env = values
		log.Infof("[Env] loaded %s", filepath.Clean(path))
		return
	}
	Env = map[string]string{}
	log.Warn("[Env] no .env file found, using process environment only")
}

func lookup(key string) (string, bool) {
	if v, ok := Env[key]; ok {
		return v, true
	}
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	return "", false
}

func GetEnv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

// parsed converts a variable with parse, falling back to def when it is unset
// or does not parse.
func parsed[T any](key string, def T, kind string, parse func(string) (T, error)) T {
	raw, ok := lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		log.Warnf("[Env] %s=%q is not %s, using %v", key, raw, kind, def)
		return def
	}
	return v
}

func GetEnvInt(key string, def int) int {
	return parsed(key, def, "an integer", strconv.Atoi)
}

// GetEnvDuration parses values such as "15s" or "2m".
func GetEnvDuration(key string, def time.Duration) time.Duration {
	return parsed(key, def, "a duration", time.ParseDuration)
}

// GetEnvBool accepts 1/0, true/false, yes/no and on/off.
func GetEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(GetEnv(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// GetEnvList splits a comma separated variable and drops empty entries.
func GetEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(GetEnv(key, ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDev is true only when APP_ENV is "dev"; anything else is treated as
// production.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
