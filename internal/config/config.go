package config

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load,
// e.g. DMCHAT_SIGNING_KEY for -signing-key.
const EnvPrefix = "DMCHAT"

// MemoryDSN selects the in-memory store instead of Postgres.
const MemoryDSN = "memory"

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// Location is used to decide calendar days in last seen strings.
	Location *time.Location
	// Migrate runs the embedded schema migrations at startup.
	Migrate bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		Location:       time.Local,
	}, nil
}

// Load resolves the configuration from, in increasing precedence, the flag
// defaults, the YAML file named by -config, DMCHAT_* environment variables
// and flags set on the command line. fs must already be parsed.
func Load(fs *flag.FlagSet) (*Config, error) {
	v := viper.New()

	fs.VisitAll(func(f *flag.Flag) {
		v.SetDefault(f.Name, f.DefValue)
	})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.Visit(func(f *flag.Flag) {
		v.Set(f.Name, f.Value.String())
	})

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := NewConfig(
		v.GetString("addr"),
		v.GetString("dsn"),
		v.GetString("signing-key"),
		stringList(v.Get("allowed-origins")),
	)
	if err != nil {
		return nil, err
	}

	loc, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	cfg.Location = loc
	cfg.Migrate = v.GetBool("migrate")

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// stringList accepts a YAML sequence or a comma-separated string.
func stringList(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
