package config

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr    = ":3000"
	DefaultSiteName      = "ClassMeet"
	DefaultStoreBackend  = "memory"
	DefaultCredentialsDB = "mysql"
	DefaultCallbackPath  = "/oauth/google/callback"
	DefaultMongoDatabase = "classmeet"
	DefaultBoltPath      = "./classmeet.db"
)

type MySQLConfig struct {
	Dsn             string        `mapstructure:"dsn"`
	TablePrefix     string        `mapstructure:"tablePrefix"`
	Replicas        []string      `mapstructure:"replicas"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type StoreConfig struct {
	// Backend holds pending authorizations: "redis" or "memory".
	Backend string `mapstructure:"backend"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type CalendarConfig struct {
	ClientID        string   `mapstructure:"clientID"`
	ClientSecret    string   `mapstructure:"clientSecret"`
	Scopes          []string `mapstructure:"scopes"`
	CallbackPath    string   `mapstructure:"callbackPath"`
	CalendarID      string   `mapstructure:"calendarID"`
	SuccessRedirect string   `mapstructure:"successRedirect"`
	FailureRedirect string   `mapstructure:"failureRedirect"`
	ReconnectURL    string   `mapstructure:"reconnectURL"`
	// Credentials selects the credential backend: "mysql", "mongo" or "bolt".
	Credentials string `mapstructure:"credentials"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type Config struct {
	Debug        bool           `mapstructure:"debug"`
	SiteName     string         `mapstructure:"siteName"`
	BaseURL      string         `mapstructure:"baseURL"`
	MasterKey    string         `mapstructure:"masterKey"`
	ListenAddr   string         `mapstructure:"listenAddr"`
	TemplateDir  string         `mapstructure:"templateDir"`
	AllowOrigins []string       `mapstructure:"allowOrigins"`
	MySQL        MySQLConfig    `mapstructure:"mysql"`
	Mongo        MongoConfig    `mapstructure:"mongo"`
	Bolt         BoltConfig     `mapstructure:"bolt"`
	Redis        RedisConfig    `mapstructure:"redis"`
	Store        StoreConfig    `mapstructure:"store"`
	Auth         AuthConfig     `mapstructure:"auth"`
	Calendar     CalendarConfig `mapstructure:"calendar"`
	Mail         MailConfig     `mapstructure:"mail"`
}

// CallbackURL is the redirect URI registered with the provider.
func (c *Config) CallbackURL() (string, error) {
	return url.JoinPath(c.BaseURL, c.Calendar.CallbackPath)
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.BaseURL == "" {
		return errors.New("baseURL is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if c.Calendar.ClientID == "" || c.Calendar.ClientSecret == "" {
		return errors.New("calendar.clientID and calendar.clientSecret are required")
	}
	if c.Calendar.CallbackPath == "" {
		c.Calendar.CallbackPath = DefaultCallbackPath
	}
	if c.Calendar.Credentials == "" {
		c.Calendar.Credentials = DefaultCredentialsDB
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
		if c.Redis.URL != "" {
			c.Store.Backend = "redis"
		}
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = DefaultMongoDatabase
	}
	if c.Bolt.Path == "" {
		c.Bolt.Path = DefaultBoltPath
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
