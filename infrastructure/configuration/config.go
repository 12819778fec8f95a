package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"social-publisher/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App         App         `json:"app"`
	Database    Database    `json:"database"`
	RedisClient RedisClient `json:"redisClient"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	OAuth       OAuth       `json:"oauth"`
	Meta        Meta        `json:"meta"`
	Publish     Publish     `json:"publish"`
	Scheduler   Scheduler   `json:"scheduler"`
	Metrics     Metrics     `json:"metrics"`
	Security    Security    `json:"security"`
	Links       Links       `json:"links"`
}

type App struct {
	Port        int      `json:"port"`
	SecretKey   string   `json:"secretKey"`
	LogLevel    string   `json:"logLevel"`
	TLSEnabled  bool     `json:"tlsEnabled"`
	TLSCertFile string   `json:"tlsCertFile"`
	TLSKeyFile  string   `json:"tlsKeyFile"`
	CORSOrigins []string `json:"corsOrigins"`
}

type Database struct {
	Vendor string `json:"vendor"` // credential store: postgres | mssql
	Psql   Db     `json:"psql"`
	Mssql  Db     `json:"mssql"`
	Mongo  Db     `json:"mongo"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	Topic     string `json:"topic"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

// OAuth holds per-network OAuth client credentials.
type OAuth struct {
	Facebook  OAuthClient `json:"facebook"`
	Instagram OAuthClient `json:"instagram"`
	Twitter   OAuthClient `json:"twitter"`
	YouTube   OAuthClient `json:"youtube"`
	TikTok    OAuthClient `json:"tiktok"`
}

type OAuthClient struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RedirectURI  string   `json:"redirectURI"`
	Scopes       []string `json:"scopes"`
}

// Configured reports whether the network can be linked at all.
func (o OAuthClient) Configured() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.RedirectURI != ""
}

type Meta struct {
	GraphVersion   string  `json:"graphVersion"`
	MinDailyBudget float64 `json:"minDailyBudget"`
	Currency       string  `json:"currency"`
}

type Publish struct {
	Concurrency        int `json:"concurrency"`
	CallTimeoutSeconds int `json:"callTimeoutSeconds"`
}

type Scheduler struct {
	Enabled                bool `json:"enabled"`
	SweepIntervalSeconds   int  `json:"sweepIntervalSeconds"`
	BatchSize              int  `json:"batchSize"`
	RetryMaxAttempts       int  `json:"retryMaxAttempts"`
	RetryBaseDelaySeconds  int  `json:"retryBaseDelaySeconds"`
	MetricsIntervalMinutes int  `json:"metricsIntervalMinutes"`
}

type Metrics struct {
	LookbackDays int `json:"lookbackDays"`
	JobLimit     int `json:"jobLimit"`
}

type Security struct {
	// CredentialKey is a hex encoded 32 byte key used to seal tokens at rest.
	CredentialKey string `json:"credentialKey"`
}

// Links are the presentation-layer pages the OAuth callback redirects to.
type Links struct {
	SuccessURL string `json:"successURL"`
	ErrorURL   string `json:"errorURL"`
}

var C Config

func init() {
	LoadEnvFromFile("config.env", ".env")
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initOAuth(&C)
	applyDefaults(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Vendor = getConfigValue(C.Database.Vendor, "DB_VENDOR", "postgres")

	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "social_publisher")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")
	C.Database.Psql.SSLMode = getConfigValue(C.Database.Psql.SSLMode, "DB_SSLMODE", "disable")

	// Optional MSSQL config via environment variables (Azure SQL deployments)
	C.Database.Mssql.Name = getConfigValue(C.Database.Mssql.Name, "MSSQL_DB_NAME", "")
	C.Database.Mssql.Host = getConfigValue(C.Database.Mssql.Host, "MSSQL_HOST", "localhost")
	C.Database.Mssql.Port = getConfigValue(C.Database.Mssql.Port, "MSSQL_PORT", "1433")
	C.Database.Mssql.User = getConfigValue(C.Database.Mssql.User, "MSSQL_USER", "")
	C.Database.Mssql.Password = getConfigValue(C.Database.Mssql.Password, "MSSQL_PASSWORD", "")

	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.User = getConfigValue(C.Database.Mongo.User, "MONGO_USER", "")
	C.Database.Mongo.Password = getConfigValue(C.Database.Mongo.Password, "MONGO_PASSWORD", "")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "social_publisher")

	logger.GetLogger().WithFields(map[string]interface{}{
		"vendor": C.Database.Vendor,
		"host":   C.Database.Psql.Host,
		"mongo":  C.Database.Mongo.Host != "",
	}).Info("Database configuration")
}

func initApp(C *Config) {
	// Prefer SECRET_KEY from environment for JWT verification
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			C.App.TLSEnabled = b
		}
	}
	C.App.TLSCertFile = getConfigValue(C.App.TLSCertFile, "TLS_CERT_FILE", "")
	C.App.TLSKeyFile = getConfigValue(C.App.TLSKeyFile, "TLS_KEY_FILE", "")
	C.App.LogLevel = getConfigValue(C.App.LogLevel, "LOG_LEVEL", "info")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		C.App.CORSOrigins = strings.Split(v, ",")
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}

	C.Security.CredentialKey = getConfigValue(C.Security.CredentialKey, "CREDENTIAL_KEY", "")
	if C.Security.CredentialKey == "" {
		logger.GetLogger().Warn("Security.CredentialKey not set; connection tokens are stored unsealed")
	}
	C.Links.SuccessURL = getConfigValue(C.Links.SuccessURL, "LINK_SUCCESS_URL", "http://localhost:4200/connections/success")
	C.Links.ErrorURL = getConfigValue(C.Links.ErrorURL, "LINK_ERROR_URL", "http://localhost:4200/connections/error")
	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	C.Pubsub.Topic = getConfigValue(C.Pubsub.Topic, "PUBSUB_TOPIC", "publish-job-events")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
	C.ServiceBus.Queue = getConfigValue(C.ServiceBus.Queue, "SERVICEBUS_QUEUE", "publish-job-events")
}

func initOAuth(C *Config) {
	clients := []struct {
		prefix string
		client *OAuthClient
	}{
		{"FACEBOOK", &C.OAuth.Facebook},
		{"INSTAGRAM", &C.OAuth.Instagram},
		{"TWITTER", &C.OAuth.Twitter},
		{"YOUTUBE", &C.OAuth.YouTube},
		{"TIKTOK", &C.OAuth.TikTok},
	}
	for _, c := range clients {
		c.client.ClientID = getConfigValue(c.client.ClientID, c.prefix+"_CLIENT_ID", "")
		c.client.ClientSecret = getConfigValue(c.client.ClientSecret, c.prefix+"_CLIENT_SECRET", "")
		c.client.RedirectURI = getConfigValue(c.client.RedirectURI, c.prefix+"_REDIRECT_URI", "")
		// Prefer https redirect URIs locally when TLS enabled
		if C.App.TLSEnabled && c.client.RedirectURI != "" && !hasHTTPS(c.client.RedirectURI) {
			c.client.RedirectURI = toHTTPSCallback(c.client.RedirectURI)
		}
	}
}

func applyDefaults(C *Config) {
	if C.Meta.GraphVersion == "" {
		C.Meta.GraphVersion = "v19.0"
	}
	if C.Meta.MinDailyBudget <= 0 {
		C.Meta.MinDailyBudget = 1
	}
	if C.Publish.Concurrency <= 0 {
		C.Publish.Concurrency = 4
	}
	if C.Publish.CallTimeoutSeconds <= 0 {
		C.Publish.CallTimeoutSeconds = 30
	}
	if C.Scheduler.SweepIntervalSeconds <= 0 {
		C.Scheduler.SweepIntervalSeconds = 15
	}
	if C.Scheduler.BatchSize <= 0 {
		C.Scheduler.BatchSize = 20
	}
	if C.Scheduler.RetryMaxAttempts <= 0 {
		C.Scheduler.RetryMaxAttempts = 3
	}
	if C.Scheduler.RetryBaseDelaySeconds <= 0 {
		C.Scheduler.RetryBaseDelaySeconds = 60
	}
	if C.Scheduler.MetricsIntervalMinutes <= 0 {
		C.Scheduler.MetricsIntervalMinutes = 360
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			C.Scheduler.Enabled = b
		}
	}
	if C.Metrics.LookbackDays <= 0 {
		C.Metrics.LookbackDays = 30
	}
	if C.Metrics.JobLimit <= 0 {
		C.Metrics.JobLimit = 100
	}
}

// getConfigValue gets value from environment first, then config, then default
func getConfigValue(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return defaultValue
}

// helpers to coerce local callback to https
func hasHTTPS(u string) bool { return strings.HasPrefix(u, "https://") }
func toHTTPSCallback(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
