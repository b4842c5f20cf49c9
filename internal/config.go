package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/digest"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultTimezone is the zone of the deployment when none is configured.
const DefaultTimezone = "Asia/Ho_Chi_Minh"

var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Mail      MailConfig        `yaml:"mail"`
	Weather   WeatherConfig     `yaml:"weather"`
	Data      DataConfig        `yaml:"data"`
	Decks     []deck.Config     `yaml:"decks"`
	Schedules []ScheduleConfig  `yaml:"schedules"`
	Planner   PlannerConfig     `yaml:"planner"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Mail.Validate(); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	if err := c.Weather.Validate(); err != nil {
		return fmt.Errorf("weather: %w", err)
	}
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data: %w", err)
	}

	names := make([]any, 0, len(c.Decks))
	for i := range c.Decks {
		if err := validateDeck(&c.Decks[i]); err != nil {
			return fmt.Errorf("decks[%d]: %w", i, err)
		}
		names = append(names, c.Decks[i].Name)
	}

	if len(c.Schedules) == 0 {
		return errors.New("schedules: at least one schedule is required")
	}
	seen := make(map[string]bool, len(c.Schedules))
	for i := range c.Schedules {
		s := &c.Schedules[i]
		if err := s.Validate(names); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
		if seen[s.Action] {
			return fmt.Errorf("schedules[%d]: duplicate action %q", i, s.Action)
		}
		seen[s.Action] = true
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel     slog.Level    `yaml:"log_level"`
	HTTP         HTTPConfig    `yaml:"http"`
	Timezone     string        `yaml:"timezone"`
	TickInterval time.Duration `yaml:"tick_interval"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	// PublicURL is the externally reachable base URL used in mail links.
	PublicURL string `yaml:"public_url"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TickInterval, validation.Required, validation.Min(time.Second), validation.Max(time.Minute)),
		validation.Field(&c.SendTimeout, validation.Required),
		validation.Field(&c.PublicURL, is.URL),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Location returns the configured zone. When the zone database has no entry
// for it, a fixed UTC+7 zone is returned together with the lookup error.
func (c *ApplicationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("UTC+7", 7*60*60), err
	}
	return loc, nil
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the /api routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// MailConfig holds the SMTP relay and the digest recipients.
type MailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Validate validates the mail configuration.
func (c *MailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.From, validation.Required, is.EmailFormat),
		validation.Field(&c.To, validation.Required, validation.Each(is.EmailFormat)),
	)
}

// Mailer builds the SMTP mailer.
func (c *MailConfig) Mailer() *digest.SMTPMailer {
	return &digest.SMTPMailer{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

// WeatherConfig holds the Open-Meteo location.
type WeatherConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BaseURL   string  `yaml:"base_url"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Validate validates the weather configuration.
func (c *WeatherConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&c.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// DataConfig holds the directory local deck files are read from.
type DataConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
	// CacheTTL bounds how long decoded decks are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.CacheTTL, validation.Required),
	)
}

func validateDeck(d *deck.Config) error {
	if d.LearnedColumn == "" {
		d.LearnedColumn = "Learned"
	}
	if d.SampleSize == 0 {
		d.SampleSize = 10
	}
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required, validation.Match(regexp.MustCompile(`^[A-Za-z0-9_-]+$`))),
		validation.Field(&d.Source, validation.Required),
		validation.Field(&d.SampleSize, validation.Min(1), validation.Max(100)),
	)
}

// ScheduleConfig is one daily digest.
type ScheduleConfig struct {
	Action string   `yaml:"action"`
	Title  string   `yaml:"title"`
	Times  []string `yaml:"times"`
	// TestTime is an extra trigger time, handy for trying a schedule out.
	TestTime string   `yaml:"test_time"`
	Sections []string `yaml:"sections"`
	// Decks restricts the vocabulary section; empty means every deck.
	Decks []string `yaml:"decks"`
}

// Validate validates the schedule against the configured deck names.
func (c *ScheduleConfig) Validate(deckNames []any) error {
	sections := make([]any, len(digest.Sections))
	for i, s := range digest.Sections {
		sections[i] = s
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Action, validation.Required),
		validation.Field(&c.Times, validation.Required, validation.Each(validation.Match(hhmm))),
		validation.Field(&c.TestTime, validation.Match(hhmm)),
		validation.Field(&c.Sections, validation.Required, validation.Each(validation.In(sections...))),
		validation.Field(&c.Decks, validation.Each(validation.In(deckNames...))),
	)
}

// TriggerTimes returns the configured times plus the test time, if any.
func (c *ScheduleConfig) TriggerTimes() []string {
	out := append([]string(nil), c.Times...)
	if c.TestTime != "" {
		out = append(out, c.TestTime)
	}
	return out
}

// DigestAction converts the schedule to its digest content policy.
func (c *ScheduleConfig) DigestAction() digest.Action {
	return digest.Action{
		Name:     c.Action,
		Title:    c.Title,
		Sections: c.Sections,
		Decks:    c.Decks,
	}
}

// PlannerConfig holds the task list of the planner section.
type PlannerConfig struct {
	Tasks []string `yaml:"tasks"`
	// Greetings replaces the built-in greeting lines.
	Greetings []string `yaml:"greetings"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Timezone:     DefaultTimezone,
			TickInterval: time.Minute,
			SendTimeout:  2 * time.Minute,
			PublicURL:    "http://localhost:8080",
		},
		SQLite: SQLiteConfig{
			Path: "./dailymail.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Mail: MailConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Weather: WeatherConfig{
			BaseURL:   "https://api.open-meteo.com",
			Latitude:  10.8231,
			Longitude: 106.6297,
		},
		Data: DataConfig{
			Dir:      "./data",
			Watch:    true,
			CacheTTL: 10 * time.Minute,
		},
	}
}
