package models

// MConfig Structure
type MConfig struct {
	Name        string             `yaml:"name"`
	LogLevel    string             `yaml:"log_level"`
	LogFile     string             `yaml:"log_file"`
	Timezone    string             `yaml:"timezone"`
	Backend     MBackendConfig     `yaml:"backend"`
	Stream      MStreamConfig      `yaml:"stream"`
	Cache       MCacheConfig       `yaml:"cache"`
	Interpreter MInterpreterConfig `yaml:"interpreter"`
	Scan        MScanConfig        `yaml:"scan"`
	Market      MMarketConfig      `yaml:"market"`
	Storage     MStorageConfig     `yaml:"storage"`
	Server      MServerConfig      `yaml:"server"`
	Grpc        MGrpcConfig        `yaml:"grpc"`
}

type MBackendConfig struct {
	BaseURL           string   `yaml:"base_url"`
	RequestTimeout    int      `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	Proxies           []string `yaml:"proxies"`
	UserAgent         string   `yaml:"user_agent"`
}

type MStreamConfig struct {
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	BackoffInitialMillis int `yaml:"backoff_initial_ms"`
	BackoffMaxMillis     int `yaml:"backoff_max_ms"`
	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	EventBuffer          int `yaml:"event_buffer"`
}

type MCacheConfig struct {
	CardCapacity    int `yaml:"card_capacity"`
	ETagCapacity    int `yaml:"etag_capacity"`
	ChannelHistory  int `yaml:"channel_history"`
	LiveFeedHistory int `yaml:"live_feed_history"`
}

type MInterpreterConfig struct {
	MaxTickers      int `yaml:"max_tickers"`
	RecentTickerCap int `yaml:"recent_ticker_cap"`
}

type MScanConfig struct {
	Limit int `yaml:"limit"`
}

type MMarketConfig struct {
	MIC               string `yaml:"mic"`
	StaleAfterSeconds int    `yaml:"stale_after_seconds"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type MGrpcConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}
