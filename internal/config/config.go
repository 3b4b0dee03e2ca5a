package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Market  MarketConfig  `mapstructure:"market"`
	Trading TradingConfig `mapstructure:"trading"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Cron    CronConfig    `mapstructure:"cron"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	WSURL   string        `mapstructure:"ws_url"`
}

// TradingConfig carries the exchange calendar and the exit rule constants.
// Slot and exit times are wall-clock "HH:MM" strings in the exchange timezone.
type TradingConfig struct {
	Timezone             string   `mapstructure:"timezone"`
	Slots                []string `mapstructure:"slots"`
	EODExitTime          string   `mapstructure:"eod_exit_time"`
	VWAPCrossGraceTime   string   `mapstructure:"vwap_cross_grace_time"`
	StopLossFraction     float64  `mapstructure:"stop_loss_fraction"`
	ProfitTargetMultiple float64  `mapstructure:"profit_target_multiple"`
	OTMSteps             int      `mapstructure:"otm_steps"`
	Indices              []string `mapstructure:"indices"`
	IndexPolicy          string   `mapstructure:"index_policy"`
}

type EnrichConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ExitEval     string `mapstructure:"exit_eval"`
	EODExit      string `mapstructure:"eod_exit"`
	QuoteRefresh string `mapstructure:"quote_refresh"`
}

type StreamConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MaxSymbols      int           `mapstructure:"max_symbols"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("market.base_url", "http://localhost:9000")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.ws_url", "")
	v.SetDefault("trading.timezone", "Asia/Kolkata")
	v.SetDefault("trading.slots", []string{"10:15", "11:15", "12:15", "13:15", "14:15", "15:15"})
	v.SetDefault("trading.eod_exit_time", "15:25")
	v.SetDefault("trading.vwap_cross_grace_time", "11:15")
	v.SetDefault("trading.stop_loss_fraction", 0.10)
	v.SetDefault("trading.profit_target_multiple", 1.5)
	v.SetDefault("trading.otm_steps", 1)
	v.SetDefault("trading.indices", []string{"NIFTY 50", "NIFTY BANK"})
	v.SetDefault("trading.index_policy", "per_alert")
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.queue_size", 256)
	v.SetDefault("enrich.job_timeout", "30s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.exit_eval", "0 15 10-15 * * MON-FRI")
	v.SetDefault("cron.eod_exit", "0 25 15 * * MON-FRI")
	v.SetDefault("cron.quote_refresh", "@every 1m")
	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.refresh_interval", "30s")
	v.SetDefault("stream.max_symbols", 200)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
