package config

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// ECOMMERCE_DATABASES_DRIVER or ECOMMERCE_SERVER_ADDRESS.
const EnvPrefix = "ecommerce"

type Config struct {
	Server    Server    `yaml:"server"`
	Databases Databases `yaml:"databases"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// Databases holds one DSN per engine; Driver picks the one in use.
type Databases struct {
	Driver   string `yaml:"driver"`
	Postgres string `yaml:"postgres"`
	MySQL    string `yaml:"mysql"`
	Mongo    string `yaml:"mongo"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Databases: Databases{Driver: "memory"},
		Log:       Log{Level: "info", Format: "json"},
	}
}

// LoadConfig reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "read %s", path)
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, errors.Wrap(err, "environment overrides")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address must be set")
	}
	if _, err := c.Databases.DSN(); err != nil {
		return err
	}
	return nil
}

// DSN returns the connection string for the selected driver.
func (d Databases) DSN() (string, error) {
	var dsn string
	switch d.Driver {
	case "postgres":
		dsn = d.Postgres
	case "mysql":
		dsn = d.MySQL
	case "mongo":
		dsn = d.Mongo
	case "memory":
		return "", nil
	default:
		return "", errors.Errorf("unsupported database driver: %q", d.Driver)
	}
	if dsn == "" {
		return "", errors.Errorf("databases.%s must be set when driver is %s", d.Driver, d.Driver)
	}
	return dsn, nil
}
