package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeThread    = "thread"
	ModeStateless = "stateless"

	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "change-me"
)

var DefaultAllowedPages = []string{"default"}

// User is a login entry. Password is plaintext here; it is hashed when seeded
// into the user directory.
type User struct {
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	Pages    []string `json:"pages,omitempty" yaml:"pages,omitempty"`
}

type Config struct {
	Port   string
	LogDir string

	SessionTTL     time.Duration
	CookieSecure   bool
	CookieSameSite http.SameSite
	CORSOrigins    []string
	JWTSecret      string

	Users        []User
	DefaultPages []string

	DBDriver   string
	DBDSN      string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	OpenAIKey     string
	OpenAIBaseURL string
	AssistantID   string
	AgentID       string
	Model         string
	WorkflowID    string
	ChatMode      string

	ProviderTimeout time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	LoginRatePerMin int

	// problems found while loading; surfaced by Validate
	problems []string
}

func LoadConfig() Config {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cfg.problems = append(cfg.problems, fmt.Sprintf(".env: %v", err))
	}

	cfg.Port = getEnv("PORT", "8080")
	cfg.LogDir = getEnv("LOG_DIR", "logs")

	cfg.SessionTTL = cfg.getEnvDuration("SESSION_TTL", 12*time.Hour)
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", ""))
	cfg.CookieSecure = cfg.getEnvBool("SESSION_COOKIE_SECURE", len(cfg.CORSOrigins) > 0)
	cfg.CookieSameSite = cfg.parseSameSite(getEnv("SESSION_COOKIE_SAMESITE", ""))
	cfg.JWTSecret = getEnv("JWT_SECRET", "")

	cfg.DefaultPages = parsePages(getEnv("DEFAULT_ALLOWED_PAGES", ""), DefaultAllowedPages)
	cfg.Users = cfg.loadUsers()

	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", "sqlite"))
	cfg.DBDSN = getEnv("DB_DSN", "")
	cfg.DBUser = getEnv("DB_USER", "")
	cfg.DBPassword = getEnv("DB_PASSWORD", "")
	cfg.DBHost = getEnv("DB_HOST", "")
	cfg.DBPort = getEnv("DB_PORT", "5432")
	cfg.DBName = getEnv("DB_NAME", "")

	cfg.OpenAIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.AssistantID = getEnv("ASSISTANT_ID", "")
	cfg.AgentID = getEnv("OPENAI_AGENT_ID", "")
	cfg.Model = getEnv("OPENAI_MODEL", "")
	cfg.WorkflowID = getEnv("WORKFLOW_ID", "")
	cfg.ChatMode = cfg.parseChatMode(getEnv("CHAT_MODE", ""))

	cfg.ProviderTimeout = cfg.getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second)
	cfg.PollInterval = cfg.getEnvDuration("POLL_INTERVAL", time.Second)
	cfg.PollMaxAttempts = cfg.getEnvInt("POLL_MAX_ATTEMPTS", 60)
	cfg.LoginRatePerMin = cfg.getEnvInt("LOGIN_RATE_PER_MIN", 10)
	return cfg
}

// Validate reports settings that will make some endpoints fail. None of them
// stops the server from starting.
func (c Config) Validate() []string {
	warnings := append([]string(nil), c.problems...)
	if c.OpenAIKey == "" {
		warnings = append(warnings, "OPENAI_API_KEY is not set; chat endpoints will fail until configured")
	}
	switch c.ChatMode {
	case ModeThread:
		if c.AssistantID == "" {
			warnings = append(warnings, "ASSISTANT_ID is not set; thread submissions will fail")
		}
	case ModeStateless:
		if c.AgentID == "" && c.Model == "" {
			warnings = append(warnings, "neither OPENAI_AGENT_ID nor OPENAI_MODEL is set; /api/chat will fail")
		}
	}
	if c.WorkflowID == "" {
		warnings = append(warnings, "WORKFLOW_ID is not set; chatkit sessions are unavailable")
	}
	if c.JWTSecret == "" {
		warnings = append(warnings, "JWT_SECRET is not set; only cookie sessions are accepted")
	}
	for _, u := range c.Users {
		if u.Password == DefaultAdminPassword {
			warnings = append(warnings, fmt.Sprintf("user %q still uses the default password", u.Username))
		}
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		warnings = append(warnings, "SESSION_COOKIE_SAMESITE=None without SESSION_COOKIE_SECURE; browsers will drop the cookie")
	}
	return warnings
}

// PostgresDSN builds a DSN from the DB_* parts when DB_DSN is empty.
func (c Config) PostgresDSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// loadUsers merges APP_USERS and USERS_FILE. When both are empty the
// ADMIN_USERNAME / ADMIN_PASSWORD pair is the only account.
func (c *Config) loadUsers() []User {
	var users []User
	if raw := strings.TrimSpace(getEnv("APP_USERS", "")); raw != "" {
		parsed, err := ParseUsers(raw, c.DefaultPages)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("APP_USERS: %v", err))
		}
		users = append(users, parsed...)
	}
	if path := getEnv("USERS_FILE", ""); path != "" {
		parsed, err := LoadUsersFile(path, c.DefaultPages)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("USERS_FILE: %v", err))
		}
		users = append(users, parsed...)
	}
	if len(users) > 0 {
		return users
	}
	return []User{{
		Username: getEnv("ADMIN_USERNAME", DefaultAdminUsername),
		Password: getEnv("ADMIN_PASSWORD", DefaultAdminPassword),
		Pages:    c.DefaultPages,
	}}
}

// ParseUsers accepts either "email:password,..." or JSON, as a list of
// {username, password, pages} or an object keyed by username.
func ParseUsers(raw string, defaultPages []string) ([]User, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		return parseUsersJSON(raw, defaultPages)
	}
	var users []User
	for _, entry := range splitList(raw) {
		name, password, ok := strings.Cut(entry, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" || password == "" {
			continue
		}
		users = append(users, User{Username: name, Password: password, Pages: defaultPages})
	}
	return users, nil
}

type jsonUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Pages    any    `json:"pages"`
}

func parseUsersJSON(raw string, defaultPages []string) ([]User, error) {
	var users []User
	if strings.HasPrefix(raw, "[") {
		var list []jsonUser
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		for _, u := range list {
			if u.Username == "" || u.Password == "" {
				continue
			}
			users = append(users, User{Username: u.Username, Password: u.Password, Pages: normalizePages(u.Pages, defaultPages)})
		}
		return users, nil
	}

	var byName map[string]jsonUser
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for name, u := range byName {
		if u.Password == "" {
			continue
		}
		users = append(users, User{Username: name, Password: u.Password, Pages: normalizePages(u.Pages, defaultPages)})
	}
	return users, nil
}

type usersFile struct {
	Users []User `yaml:"users"`
}

func LoadUsersFile(path string, defaultPages []string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	users := make([]User, 0, len(f.Users))
	for _, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			continue
		}
		if len(u.Pages) == 0 {
			u.Pages = defaultPages
		}
		users = append(users, u)
	}
	return users, nil
}

func normalizePages(v any, fallback []string) []string {
	switch pages := v.(type) {
	case string:
		return parsePages(pages, fallback)
	case []any:
		var out []string
		for _, p := range pages {
			if s := strings.TrimSpace(fmt.Sprint(p)); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func parsePages(raw string, fallback []string) []string {
	if pages := splitList(raw); len(pages) > 0 {
		return pages
	}
	return append([]string(nil), fallback...)
}

func (c *Config) parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		if len(c.CORSOrigins) > 0 {
			return http.SameSiteNoneMode
		}
		return http.SameSiteLaxMode
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		c.problems = append(c.problems, fmt.Sprintf("SESSION_COOKIE_SAMESITE: unknown value %q, using Lax", raw))
		return http.SameSiteLaxMode
	}
}

func (c *Config) parseChatMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeThread:
		return ModeThread
	case ModeStateless:
		return ModeStateless
	case "":
	default:
		c.problems = append(c.problems, fmt.Sprintf("CHAT_MODE: unknown value %q", raw))
	}
	if c.AssistantID != "" {
		return ModeThread
	}
	return ModeStateless
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func (c *Config) getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		c.problems = append(c.problems, fmt.Sprintf("%s: invalid number %q", key, value))
		return fallback
	}
	return n
}

func (c *Config) getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	c.problems = append(c.problems, fmt.Sprintf("%s: invalid boolean %q", key, value))
	return fallback
}

// getEnvDuration accepts Go durations ("12h", "500ms") or plain seconds.
func (c *Config) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		c.problems = append(c.problems, fmt.Sprintf("%s: invalid duration %q", key, value))
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
