package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Property file names inside <configDir>/<environment>/.
const (
	APIPropertiesFile      = "application_API.properties"
	DatabasePropertiesFile = "database.properties"
)

// APIProperties holds application_API.properties.
type APIProperties struct {
	BaseURL        string `mapstructure:"baseurl"`
	TimeoutSeconds int    `mapstructure:"timeoutseconds"`
	RetryCount     int    `mapstructure:"retrycount"`
}

// WebProperties holds the web entries of application_API.properties.
type WebProperties struct {
	URL       string `mapstructure:"url"`
	LoginPath string `mapstructure:"loginpath"`
}

// LoginProperties holds the default credentials.
type LoginProperties struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MobileProperties holds the app coordinates for Appium sessions.
type MobileProperties struct {
	AppPackage  string `mapstructure:"apppackage"`
	AppActivity string `mapstructure:"appactivity"`
	BundleID    string `mapstructure:"bundleid"`
}

// DatabaseProperties holds database.properties.
type DatabaseProperties struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	Schema       string `mapstructure:"schema"`
	MaxOpenConns int    `mapstructure:"maxopenconns"`
}

// Properties is everything loaded for one environment.
type Properties struct {
	Environment Environment `mapstructure:"-"`
	Dir         string      `mapstructure:"-"`

	API    APIProperties      `mapstructure:"api"`
	Web    WebProperties      `mapstructure:"web"`
	Login  LoginProperties    `mapstructure:"login"`
	Mobile MobileProperties   `mapstructure:"mobile"`
	DB     DatabaseProperties `mapstructure:"-"`
}

// Timeout returns the API timeout as a duration.
func (a APIProperties) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// LoginURL joins the web URL and login path.
func (w WebProperties) LoginURL() string {
	return strings.TrimRight(w.URL, "/") + "/" + strings.TrimLeft(w.LoginPath, "/")
}

// DSN renders a lib/pq connection URL.
func (d DatabaseProperties) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted is DSN with the password masked, for logs.
func (d DatabaseProperties) Redacted() string {
	masked := d
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.DSN()
}

// LoadProperties reads both property files of env below configDir.
// Every key can be overridden with CRM_<SECTION>_<KEY>, e.g. CRM_DB_HOST.
func LoadProperties(configDir string, env Environment) (*Properties, error) {
	dir := filepath.Join(configDir, string(env))
	props := &Properties{Environment: env, Dir: dir}

	app := newPropertiesViper(filepath.Join(dir, APIPropertiesFile))
	app.SetDefault("api.baseurl", "")
	app.SetDefault("api.timeoutseconds", 30)
	app.SetDefault("api.retrycount", 0)
	app.SetDefault("web.url", "")
	app.SetDefault("web.loginpath", "/login")
	app.SetDefault("login.username", "")
	app.SetDefault("login.password", "")
	app.SetDefault("mobile.apppackage", "")
	app.SetDefault("mobile.appactivity", "")
	app.SetDefault("mobile.bundleid", "")
	if err := app.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", APIPropertiesFile, err)
	}
	if err := app.Unmarshal(props); err != nil {
		return nil, fmt.Errorf("decode %s: %w", APIPropertiesFile, err)
	}

	db := newPropertiesViper(filepath.Join(dir, DatabasePropertiesFile))
	db.SetDefault("db.host", "localhost")
	db.SetDefault("db.port", 5432)
	db.SetDefault("db.name", "")
	db.SetDefault("db.user", "")
	db.SetDefault("db.password", "")
	db.SetDefault("db.sslmode", "require")
	db.SetDefault("db.schema", "")
	db.SetDefault("db.maxopenconns", 5)
	if err := db.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", DatabasePropertiesFile, err)
	}
	var dbFile struct {
		DB DatabaseProperties `mapstructure:"db"`
	}
	if err := db.Unmarshal(&dbFile); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DatabasePropertiesFile, err)
	}
	props.DB = dbFile.DB

	if props.API.BaseURL == "" {
		return nil, fmt.Errorf("%s: api.baseUrl is required", filepath.Join(dir, APIPropertiesFile))
	}
	return props, nil
}

func newPropertiesViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
