package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageAzure    = "azure"
	StorageDatabase = "database"
	StorageFile     = "file"
	StorageMemory   = "memory"
)

type (
	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string
		RollbarToken string

		Server        ServerConfig
		Storage       StorageConfig
		Database      DatabaseConfig
		WhatsApp      WhatsAppConfig
		Notifications NotificationsConfig
		Auth          AuthConfig
	}

	ServerConfig struct {
		Host            string
		Port            string
		StaticDir       string
		AllowedOrigins  []string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	StorageConfig struct {
		Backend               string // azure | database | file | memory
		Fallback              bool   // degrade to the JSON files when the primary fails
		AzureConnectionString string
		AzureTableName        string
		DataDir               string
		WatchFiles            bool
		InitTimeout           time.Duration
	}

	DatabaseConfig struct {
		Driver string // postgres | sqlite
		URL    string
	}

	WhatsAppConfig struct {
		AccessToken       string
		PhoneNumberID     string
		BusinessAccountID string
		RecipientNumber   string
		APIVersion        string
		BaseURL           string
		Timeout           time.Duration
	}

	NotificationsConfig struct {
		Enabled          bool
		Time             string // HH:MM
		Timezone         string
		Emails           []string
		SendgridAPIKey   string
		DefaultFromEmail string
	}

	AuthConfig struct {
		AdminPasswordHash  string
		JWTExpirationDelta time.Duration
	}
)

// Addr is the address the API server listens on.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Enabled reports whether the outward-facing endpoints require an admin token.
func (c AuthConfig) Enabled() bool {
	return c.AdminPasswordHash != ""
}

// Location returns the configured notification timezone, UTC if it cannot be loaded.
func (c NotificationsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// env var names kept from the original deployment
var envBindings = map[string]string{
	"debug":                          "DEBUG",
	"build":                          "BUILD",
	"secretKey":                      "SECRET_KEY",
	"rollbarToken":                   "ROLLBAR_TOKEN",
	"server.host":                    "HOST",
	"server.port":                    "PORT",
	"server.staticDir":               "STATIC_DIR",
	"server.allowedOrigins":          "ALLOWED_ORIGINS",
	"server.disableReqLogs":          "DISABLE_REQUEST_LOGS",
	"storage.backend":                "STORAGE_BACKEND",
	"storage.fallback":               "STORAGE_FALLBACK",
	"storage.azureConnectionString":  "AZURE_STORAGE_CONNECTION_STRING",
	"storage.azureTableName":         "AZURE_TABLE_NAME",
	"storage.dataDir":                "DATA_DIR",
	"storage.watchFiles":             "WATCH_DATA_FILES",
	"database.driver":                "DATABASE_DRIVER",
	"database.url":                   "DATABASE_URL",
	"whatsapp.accessToken":           "WHATSAPP_ACCESS_TOKEN",
	"whatsapp.phoneNumberID":         "WHATSAPP_PHONE_NUMBER_ID",
	"whatsapp.businessAccountID":     "WHATSAPP_BUSINESS_ACCOUNT_ID",
	"whatsapp.recipientNumber":       "WHATSAPP_RECIPIENT_NUMBER",
	"whatsapp.apiVersion":            "WHATSAPP_API_VERSION",
	"notifications.enabled":          "WHATSAPP_NOTIFICATIONS_ENABLED",
	"notifications.time":             "NOTIFICATION_TIME",
	"notifications.timezone":         "NOTIFICATION_TIMEZONE",
	"notifications.emails":           "NOTIFY_EMAILS",
	"notifications.sendgridApiKey":   "SENDGRID_API_KEY",
	"notifications.defaultFromEmail": "DEFAULT_FROM_EMAIL",
	"auth.adminPasswordHash":         "ADMIN_PASSWORD_HASH",
}

// NewConfig loads the configuration from defaults, .env files and the environment.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env files if they exist (ignore if they do not)
	for _, path := range []string{".env", filepath.Join("config", ".env."+strings.ToLower(env))} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, errors.Wrapf(err, "loading %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "checking %s", path)
		}
	}

	v := viper.New()
	setDefaults(v, env)
	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, errors.Wrapf(err, "binding %s", name)
		}
	}

	conf := &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     env == "TEST",
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetString("server.port"),
			StaticDir:       v.GetString("server.staticDir"),
			AllowedOrigins:  splitList(v.GetString("server.allowedOrigins")),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Storage: StorageConfig{
			Backend:               CleanString(v.GetString("storage.backend"), true /* lower */),
			Fallback:              v.GetBool("storage.fallback"),
			AzureConnectionString: v.GetString("storage.azureConnectionString"),
			AzureTableName:        v.GetString("storage.azureTableName"),
			DataDir:               v.GetString("storage.dataDir"),
			WatchFiles:            v.GetBool("storage.watchFiles"),
			InitTimeout:           v.GetDuration("storage.initTimeout"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			URL:    v.GetString("database.url"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:       v.GetString("whatsapp.accessToken"),
			PhoneNumberID:     v.GetString("whatsapp.phoneNumberID"),
			BusinessAccountID: v.GetString("whatsapp.businessAccountID"),
			RecipientNumber:   v.GetString("whatsapp.recipientNumber"),
			APIVersion:        v.GetString("whatsapp.apiVersion"),
			BaseURL:           v.GetString("whatsapp.baseURL"),
			Timeout:           v.GetDuration("whatsapp.timeout"),
		},
		Notifications: NotificationsConfig{
			Enabled:          v.GetBool("notifications.enabled"),
			Time:             v.GetString("notifications.time"),
			Timezone:         v.GetString("notifications.timezone"),
			Emails:           splitList(v.GetString("notifications.emails")),
			SendgridAPIKey:   v.GetString("notifications.sendgridApiKey"),
			DefaultFromEmail: v.GetString("notifications.defaultFromEmail"),
		},
		Auth: AuthConfig{
			AdminPasswordHash:  v.GetString("auth.adminPasswordHash"),
			JWTExpirationDelta: v.GetDuration("auth.jwtExpirationDelta"),
		},
	}

	// azure when a connection string is present, JSON files otherwise
	if conf.Storage.Backend == "" {
		conf.Storage.Backend = StorageFile
		if conf.Storage.AzureConnectionString != "" {
			conf.Storage.Backend = StorageAzure
		}
	}
	return conf, nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("appName", "Trafikkvakt")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "k3x9-trf)vakt$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.allowedOrigins", "https://trafikkvakt.azurewebsites.net,http://localhost:3000,http://localhost:3001,http://localhost:5173")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("storage.azureTableName", "trafikkvakt")
	v.SetDefault("storage.dataDir", "config")
	v.SetDefault("storage.watchFiles", true)
	v.SetDefault("storage.initTimeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")

	v.SetDefault("whatsapp.apiVersion", "v22.0")
	v.SetDefault("whatsapp.baseURL", "https://graph.facebook.com")
	v.SetDefault("whatsapp.timeout", 30*time.Second)

	v.SetDefault("notifications.time", "07:00")
	v.SetDefault("notifications.timezone", "Europe/Oslo")
	v.SetDefault("notifications.defaultFromEmail", "noreply@localhost")

	v.SetDefault("auth.jwtExpirationDelta", 7*24*time.Hour)
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
