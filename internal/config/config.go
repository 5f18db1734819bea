package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "BLUFF"

type Config struct {
	Server            string
	ServerOverride    string
	RequestTimeout    time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	SelfRefresh       bool
	JournalDSN        string
	HTTPAddr          string
	PlayerName        string
	OrganizerPassword string
	Debug             bool
}

// Endpoint is the server the client dials first.
func (c *Config) Endpoint() string {
	if c.ServerOverride != "" {
		return c.ServerOverride
	}
	return c.Server
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("--server must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"request-timeout": c.RequestTimeout,
		"dial-timeout":    c.DialTimeout,
		"write-timeout":   c.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid --%s (must be positive): %s", name, d)
		}
	}
	if c.PlayerName != "" && c.OrganizerPassword != "" {
		return errors.New("--player-name and --organizer-password are mutually exclusive")
	}
	return nil
}

// Register defines every flag on flags, bound to cfg.
func Register(flags *pflag.FlagSet, cfg *Config) {
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVarP(&cfg.Server, "server", "s", "localhost:8080", "game server host:port or ws:// URL (env: BLUFF_SERVER)")
	flags.StringVar(&cfg.ServerOverride, "server-override", "", "endpoint used instead of --server (env: BLUFF_SERVER_OVERRIDE)")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", 5*time.Second, "time to wait for a response (env: BLUFF_REQUEST_TIMEOUT)")
	flags.DurationVar(&cfg.DialTimeout, "dial-timeout", 10*time.Second, "time to wait for the connection to open (env: BLUFF_DIAL_TIMEOUT)")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", 3*time.Second, "time allowed for one frame write (env: BLUFF_WRITE_TIMEOUT)")
	flags.BoolVar(&cfg.SelfRefresh, "self-refresh", true, "refresh our own player record from update-player (env: BLUFF_SELF_REFRESH)")
	flags.StringVar(&cfg.JournalDSN, "journal-dsn", "", "postgres DSN for the inbound frame journal (env: BLUFF_JOURNAL_DSN)")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", "", "serve the local inspection API on this address (env: BLUFF_HTTP_ADDR)")
	flags.StringVarP(&cfg.PlayerName, "player-name", "n", "", "log in as this player after connecting (env: BLUFF_PLAYER_NAME)")
	flags.StringVar(&cfg.OrganizerPassword, "organizer-password", "", "log in as organizer after connecting (env: BLUFF_ORGANIZER_PASSWORD)")
	flags.BoolVarP(&cfg.Debug, "debug", "d", false, "development logging (env: BLUFF_DEBUG)")
}

// LoadEnv reads .env files, then applies BLUFF_* variables to every flag not
// set on the command line. Missing env files are ignored.
func LoadEnv(flags *pflag.FlagSet, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if setErr := flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", envName(f.Name), setErr))
			}
		}
	})
	return err
}

func envName(flag string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
