package config

import "strings"

type EnvVars struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AppName       string `env:"APP_NAME" envDefault:"Barbearia SaaS"`
	Env           string `env:"ENV" envDefault:"DEV"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@barbearia.com"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	Metrics       bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if e.Port == "" || strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string { return e.AppName }
func (e EnvVars) GetEnv() string     { return e.Env }

func (e EnvVars) GetLogLevel() string  { return e.LogLevel }
func (e EnvVars) GetLogFormat() string { return e.LogFormat }

func (e EnvVars) GetAdminEmail() string { return e.AdminEmail }

// GetAdminPassword is empty when unset; bootstrap then generates one.
func (e EnvVars) GetAdminPassword() string { return e.AdminPassword }

func (e EnvVars) GetMetricsEnabled() bool { return e.Metrics }
