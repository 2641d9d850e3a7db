package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roombook/internal/civil"
	"roombook/internal/slots"
)

// EnvConfigPath names the variable that overrides the config file location.
const EnvConfigPath = "ROOMBOOK_CONFIG_PATH"

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		Debug          bool     `yaml:"debug"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		Audience  string `yaml:"audience"`
	} `yaml:"auth"`

	Reservations struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"reservations"`

	Graph struct {
		BaseURL        string  `yaml:"base_url"`
		TenantID       string  `yaml:"tenant_id"`
		ClientID       string  `yaml:"client_id"`
		ClientSecret   string  `yaml:"client_secret"`
		Mailbox        string  `yaml:"mailbox"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"graph"`

	Calendar struct {
		// Provider is graph, google or none.
		Provider        string `yaml:"provider"`
		GoogleCredsFile string `yaml:"google_credentials_file"`
		GoogleCalendar  string `yaml:"google_calendar_id"`
	} `yaml:"calendar"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Outbox struct {
		Workers        int    `yaml:"workers"`
		QueueSize      int    `yaml:"queue_size"`
		FailureLogPath string `yaml:"failure_log_path"`
		EventRefTTLDay int    `yaml:"event_ref_ttl_days"`
		Backup         struct {
			Dir           string `yaml:"dir"`
			IntervalHours int    `yaml:"interval_hours"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`
	} `yaml:"outbox"`

	Booking struct {
		Timezone          string         `yaml:"timezone"`
		OrgDomain         string         `yaml:"org_domain"`
		PrecheckConflicts bool           `yaml:"precheck_conflicts"`
		DraftIdleMinutes  int            `yaml:"draft_idle_minutes"`
		Schedule          slots.Schedule `yaml:"schedule"`
	} `yaml:"booking"`

	RoomsConfigPath string `yaml:"rooms_config_path"`

	Dashboard struct {
		BaseURL      string            `yaml:"base_url"`
		APIKey       string            `yaml:"api_key"`
		RefreshTimes []string          `yaml:"refresh_times"`
		Endpoints    map[string]string `yaml:"endpoints"`
	} `yaml:"dashboard"`

	Directory struct {
		DebounceMillis int `yaml:"debounce_ms"`
		MaxResults     int `yaml:"max_results"`
	} `yaml:"directory"`

	Telegram struct {
		BotToken     string  `yaml:"bot_token"`
		ManagerChats []int64 `yaml:"manager_chats"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// Path returns the config path from the environment or the default.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads the YAML config at path. A .env file in the working directory is
// loaded first when present so ${VAR} placeholders can come from it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if c.Reservations.BaseURL == "" {
		return fmt.Errorf("reservations.base_url is required")
	}
	switch c.CalendarProvider() {
	case "graph", "google", "none":
	default:
		return fmt.Errorf("calendar.provider: unknown provider %q", c.Calendar.Provider)
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			return fmt.Errorf("booking.timezone: %w", err)
		}
	}
	if _, err := c.RefreshTimes(); err != nil {
		return err
	}
	if c.Booking.Schedule != (slots.Schedule{}) {
		if _, err := slots.Generate(c.Booking.Schedule); err != nil {
			return fmt.Errorf("booking.schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) ServerAddr() string {
	if c.Server.Addr == "" {
		return ":8080"
	}
	return c.Server.Addr
}

func (c *Config) ReservationsTimeout() time.Duration {
	if c.Reservations.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Reservations.TimeoutSeconds) * time.Second
}

func (c *Config) GraphTimeout() time.Duration {
	if c.Graph.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Graph.TimeoutSeconds) * time.Second
}

func (c *Config) GraphBaseURL() string {
	if c.Graph.BaseURL == "" {
		return "https://graph.microsoft.com/v1.0"
	}
	return strings.TrimRight(c.Graph.BaseURL, "/")
}

func (c *Config) GraphRate() float64 {
	if c.Graph.RequestsPerSec <= 0 {
		return 5
	}
	return c.Graph.RequestsPerSec
}

// CalendarProvider defaults to graph.
func (c *Config) CalendarProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.Calendar.Provider))
	if p == "" {
		return "graph"
	}
	return p
}

// Location returns the booking time zone, local time when unset.
func (c *Config) Location() *time.Location {
	if c.Booking.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// PrecheckConflicts reports whether slots already occupied in a fresh
// snapshot are failed without calling the store. Off by default.
func (c *Config) PrecheckConflicts() bool {
	return c.Booking.PrecheckConflicts
}

func (c *Config) DraftIdle() time.Duration {
	if c.Booking.DraftIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.DraftIdleMinutes) * time.Minute
}

// Schedule returns the configured slot schedule or the default one.
func (c *Config) Schedule() slots.Schedule {
	if c.Booking.Schedule == (slots.Schedule{}) {
		return slots.DefaultSchedule()
	}
	return c.Booking.Schedule
}

func (c *Config) RoomsPath() string {
	if c.RoomsConfigPath == "" {
		return "configs/rooms.yaml"
	}
	return c.RoomsConfigPath
}

func (c *Config) OutboxWorkers() int {
	if c.Outbox.Workers <= 0 {
		return 2
	}
	return c.Outbox.Workers
}

func (c *Config) OutboxQueueSize() int {
	if c.Outbox.QueueSize <= 0 {
		return 256
	}
	return c.Outbox.QueueSize
}

func (c *Config) FailureLogPath() string {
	if c.Outbox.FailureLogPath == "" {
		return "data/calendar_failures.db"
	}
	return c.Outbox.FailureLogPath
}

func (c *Config) EventRefTTL() time.Duration {
	if c.Outbox.EventRefTTLDay <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Outbox.EventRefTTLDay) * 24 * time.Hour
}

// BackupInterval is zero when failure log backups are disabled.
func (c *Config) BackupInterval() time.Duration {
	if c.Outbox.Backup.Dir == "" {
		return 0
	}
	if c.Outbox.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Outbox.Backup.IntervalHours) * time.Hour
}

func (c *Config) DirectoryDebounce() time.Duration {
	if c.Directory.DebounceMillis <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.Directory.DebounceMillis) * time.Millisecond
}

func (c *Config) DirectoryMaxResults() int {
	if c.Directory.MaxResults <= 0 {
		return 10
	}
	return c.Directory.MaxResults
}

// RefreshTimes parses dashboard.refresh_times, defaulting to 09:00 and 14:00.
func (c *Config) RefreshTimes() ([]civil.TimeOfDay, error) {
	if len(c.Dashboard.RefreshTimes) == 0 {
		return []civil.TimeOfDay{civil.MustTimeOfDay("09:00"), civil.MustTimeOfDay("14:00")}, nil
	}
	out := make([]civil.TimeOfDay, 0, len(c.Dashboard.RefreshTimes))
	for i, s := range c.Dashboard.RefreshTimes {
		t, err := civil.ParseTimeOfDay(s)
		if err != nil {
			return nil, fmt.Errorf("dashboard.refresh_times[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
