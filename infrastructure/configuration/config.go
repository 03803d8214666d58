package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"yt-pipeline/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App          App          `json:"app"`
	Database     Database     `json:"database"`
	RedisClient  RedisClient  `json:"redisClient"`
	Hub          Hub          `json:"hub"`
	YouTube      YouTube      `json:"youtube"`
	Ingest       Ingest       `json:"ingest"`
	Backfill     Backfill     `json:"backfill"`
	Queue        Queue        `json:"queue"`
	Pubsub       Pubsub       `json:"pubsub"`
	ServiceBus   ServiceBus   `json:"serviceBus"`
	Subscription Subscription `json:"subscription"`
	Logger       Logger       `json:"logger"`
	Cors         Cors         `json:"cors"`
	Channels     []string     `json:"channels"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
}

type Database struct {
	Psql  Db `json:"psql"`
	Mongo Db `json:"mongo"`
	Mssql Db `json:"mssql"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	Database int    `json:"database"`
}

// Hub holds the WebSub hub and lease settings.
type Hub struct {
	URL                   string  `json:"url"`
	CallbackBaseURL       string  `json:"callbackBaseURL"`
	FeedBaseURL           string  `json:"feedBaseURL"`
	LeaseSeconds          int64   `json:"leaseSeconds"`
	RenewalWindowFraction float64 `json:"renewalWindowFraction"`
	RenewalIntervalSecond int     `json:"renewalIntervalSecond"`
	MaxAttempts           int     `json:"maxAttempts"`
	MaxRenewalFailures    int     `json:"maxRenewalFailures"`
	TimeoutSecond         int     `json:"timeoutSecond"`
	Secret                string  `json:"secret"`
}

type YouTube struct {
	APIKey            string  `json:"apiKey"`
	ClientID          string  `json:"clientId"`
	ClientSecret      string  `json:"clientSecret"`
	RedirectURI       string  `json:"redirectURI"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
	TimeoutSecond     int     `json:"timeoutSecond"`
}

// Ingest tunes the fetch-and-upsert path.
type Ingest struct {
	SkipExisting       bool `json:"skipExisting"`
	DedupWindowSecond  int  `json:"dedupWindowSecond"`
	FetchMaxAttempts   int  `json:"fetchMaxAttempts"`
	StoreMaxAttempts   int  `json:"storeMaxAttempts"`
	StoreTimeoutSecond int  `json:"storeTimeoutSecond"`
}

type Backfill struct {
	Target       int    `json:"target"`
	OnStartup    bool   `json:"onStartup"`
	ChannelsFile string `json:"channelsFile"`
}

// Queue selects the notification queue backend: memory, pubsub or servicebus.
type Queue struct {
	Driver          string `json:"driver"`
	Size            int    `json:"size"`
	Workers         int    `json:"workers"`
	EnqueueTimeoutM int    `json:"enqueueTimeoutMs"`
}

type Pubsub struct {
	ProjectID    string `json:"projectID"`
	Topic        string `json:"topic"`
	Subscription string `json:"subscription"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

// Subscription selects where lease state lives: memory, postgres or mssql.
type Subscription struct {
	Store string `json:"store"`
}

type Logger struct {
	Format string `json:"format"`
}

type Cors struct {
	AllowOrigins []string `json:"allowOrigins"`
}

var C Config

func init() {
	Init()
}

// Init loads the config file and applies environment overrides and defaults.
// main calls it again after env files are loaded.
func Init() {
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initHub(&C)
	initYouTube(&C)
	applyDefaults(&C)
	logger.SetFormat(C.Logger.Format)
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
	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.User = getConfigValue(C.Database.Mongo.User, "MONGO_USER", "")
	C.Database.Mongo.Password = getConfigValue(C.Database.Mongo.Password, "MONGO_PASSWORD", "")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "youtube_pipeline")

	if C.Database.Psql.Name == "" {
		C.Database.Psql.Name = os.Getenv("DB_NAME")
	}
	if C.Database.Psql.Host == "" {
		C.Database.Psql.Host = os.Getenv("DB_HOST")
	}
	if C.Database.Psql.User == "" {
		C.Database.Psql.User = os.Getenv("DB_USER")
	}
	if C.Database.Psql.Password == "" {
		C.Database.Psql.Password = os.Getenv("DB_PASSWORD")
	}
	if C.Database.Psql.Port == "" {
		C.Database.Psql.Port = getEnv("DB_PORT", "5432")
	}

	// Optional MSSQL config via environment variables (for Azure SQL in production)
	if C.Database.Mssql.Name == "" {
		C.Database.Mssql.Name = os.Getenv("MSSQL_DB_NAME")
	}
	if C.Database.Mssql.Host == "" {
		C.Database.Mssql.Host = getEnv("MSSQL_HOST", "localhost")
	}
	if C.Database.Mssql.Port == "" {
		C.Database.Mssql.Port = getEnv("MSSQL_PORT", "1433")
	}
	if C.Database.Mssql.User == "" {
		C.Database.Mssql.User = os.Getenv("MSSQL_USER")
	}
	if C.Database.Mssql.Password == "" {
		C.Database.Mssql.Password = os.Getenv("MSSQL_PASSWORD")
	}
}

func initApp(C *Config) {
	// SECRET_KEY signs operator API tokens; overrides config file when provided
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 8080
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
		C.App.Port = 8080
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; operator API authentication will reject every request. Provide SECRET_KEY via environment.")
	}
}

func initHub(C *Config) {
	C.Hub.URL = getConfigValue(C.Hub.URL, "HUB_URL", "https://pubsubhubbub.appspot.com/subscribe")
	C.Hub.CallbackBaseURL = strings.TrimRight(getConfigValue(C.Hub.CallbackBaseURL, "CALLBACK_BASE_URL", ""), "/")
	C.Hub.FeedBaseURL = getConfigValue(C.Hub.FeedBaseURL, "FEED_BASE_URL", "https://www.youtube.com/xml/feeds/videos.xml")
	C.Hub.Secret = getConfigValue(C.Hub.Secret, "HUB_SECRET", "")
	if v := os.Getenv("HUB_LEASE_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			C.Hub.LeaseSeconds = n
		}
	}
	if v := os.Getenv("HUB_RENEWAL_WINDOW_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			C.Hub.RenewalWindowFraction = f
		}
	}
	if v := os.Getenv("TRACKED_CHANNELS"); v != "" {
		C.Channels = splitList(v)
	}
}

func initYouTube(C *Config) {
	yt := GetYouTubeConfig()
	C.YouTube.APIKey = yt.APIKey
	C.YouTube.ClientID = yt.ClientID
	C.YouTube.ClientSecret = yt.ClientSecret
	C.YouTube.RedirectURI = yt.RedirectURL
}

func applyDefaults(C *Config) {
	if C.Hub.LeaseSeconds == 0 {
		C.Hub.LeaseSeconds = 864000 // 10 days
	}
	if C.Hub.RenewalWindowFraction == 0 {
		C.Hub.RenewalWindowFraction = 0.1
	}
	if C.Hub.RenewalIntervalSecond == 0 {
		C.Hub.RenewalIntervalSecond = 3600
	}
	if C.Hub.MaxAttempts == 0 {
		C.Hub.MaxAttempts = 4
	}
	if C.Hub.MaxRenewalFailures == 0 {
		C.Hub.MaxRenewalFailures = 3
	}
	if C.Hub.TimeoutSecond == 0 {
		C.Hub.TimeoutSecond = 15
	}
	if C.YouTube.RequestsPerSecond == 0 {
		C.YouTube.RequestsPerSecond = 5
	}
	if C.YouTube.Burst == 0 {
		C.YouTube.Burst = 5
	}
	if C.YouTube.TimeoutSecond == 0 {
		C.YouTube.TimeoutSecond = 20
	}
	if C.Ingest.DedupWindowSecond == 0 {
		C.Ingest.DedupWindowSecond = 60
	}
	if C.Ingest.FetchMaxAttempts == 0 {
		C.Ingest.FetchMaxAttempts = 3
	}
	if C.Ingest.StoreMaxAttempts == 0 {
		C.Ingest.StoreMaxAttempts = 3
	}
	if C.Ingest.StoreTimeoutSecond == 0 {
		C.Ingest.StoreTimeoutSecond = 10
	}
	if C.Backfill.Target == 0 {
		C.Backfill.Target = 5000
	}
	if C.Queue.Driver == "" {
		C.Queue.Driver = "memory"
	}
	if C.Queue.Size == 0 {
		C.Queue.Size = 1024
	}
	if C.Queue.Workers == 0 {
		C.Queue.Workers = 4
	}
	if C.Queue.EnqueueTimeoutM == 0 {
		C.Queue.EnqueueTimeoutM = 2000
	}
	if C.Subscription.Store == "" {
		C.Subscription.Store = "memory"
	}
	if C.ServiceBus.Queue == "" {
		C.ServiceBus.Queue = "yt-notifications"
	}
}

// CallbackURL is the webhook address the hub calls back on.
func (c *Config) CallbackURL() string {
	return c.Hub.CallbackBaseURL + "/webhook"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
