package config

import "time"

const (
	defaultDataDir      = "./devildex-data"
	defaultDocsetDir    = "./devildex-docsets"
	defaultWorkers      = 2
	defaultHistorySize  = 50
	defaultBuildTimeout = 30 * time.Minute
	defaultThemeVersion = "1.0.0"
	defaultRTDAPI       = "https://readthedocs.org/api/v3"
	defaultHTTPHost     = "127.0.0.1"
	defaultHTTPPort     = 8420
	defaultNATSSubject  = "devildex.builds"
)

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.DocsetDir == "" {
		c.DocsetDir = defaultDocsetDir
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = defaultWorkers
	}
	if c.Scheduler.BuildTimeout <= 0 {
		c.Scheduler.BuildTimeout = Duration(defaultBuildTimeout)
	}
	if c.Scheduler.HistorySize <= 0 {
		c.Scheduler.HistorySize = defaultHistorySize
	}
	if c.Backends.ThemeVersion == "" {
		c.Backends.ThemeVersion = defaultThemeVersion
	}
	if c.Backends.ReadTheDocsAPI == "" {
		c.Backends.ReadTheDocsAPI = defaultRTDAPI
	}
	if c.Backends.FetchDir == "" {
		c.Backends.FetchDir = c.DataDir + "/sources"
	}
	if c.Server.Host == "" {
		c.Server.Host = defaultHTTPHost
	}
	if c.Server.Port <= 0 {
		c.Server.Port = defaultHTTPPort
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = defaultNATSSubject
	}
}
