package config

import "time"

// Config is the root application configuration.
type Config struct {
	Reddit     RedditConfig     `yaml:"reddit"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Storage    StorageConfig    `yaml:"storage"`
	Engine     EngineConfig     `yaml:"engine"`
	Classifier ClassifierConfig `yaml:"classifier"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
}

// RedditConfig holds feed source credentials and limits.
type RedditConfig struct {
	ClientID          string        `yaml:"client_id"           env:"REDDIT_CLIENT_ID"`
	Secret            string        `yaml:"secret"              env:"REDDIT_SECRET"`
	Username          string        `yaml:"username"            env:"REDDIT_USERNAME"`
	Password          string        `yaml:"password"            env:"REDDIT_PASSWORD"`
	UserAgent         string        `yaml:"user_agent"          env:"REDDIT_USER_AGENT"          env-default:"requestwatch/1.0"`
	Subreddit         string        `yaml:"subreddit"           env:"REDDIT_SUBREDDIT"           env-default:"redditrequest"`
	BaseURL           string        `yaml:"base_url"            env:"REDDIT_BASE_URL"            env-default:"https://oauth.reddit.com"`
	TokenURL          string        `yaml:"token_url"           env:"REDDIT_TOKEN_URL"           env-default:"https://www.reddit.com/api/v1/access_token"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"REDDIT_REQUESTS_PER_MINUTE" env-default:"90"`
	Burst             int           `yaml:"burst"               env:"REDDIT_BURST"               env-default:"5"`
	Timeout           time.Duration `yaml:"timeout"             env:"REDDIT_TIMEOUT"             env-default:"30s"`
}

// MatrixConfig holds chat sink settings.
type MatrixConfig struct {
	HomeserverURL string   `yaml:"homeserver_url" env:"MATRIX_HOMESERVER_URL"`
	UserID        string   `yaml:"user_id"        env:"MATRIX_USER_ID"`
	AccessToken   string   `yaml:"access_token"   env:"MATRIX_ACCESS_TOKEN"`
	Rooms         []string `yaml:"rooms"          env:"MATRIX_ROOMS"          env-separator:","`
}

// StorageConfig selects the state store.
type StorageConfig struct {
	Driver     string `yaml:"driver"      env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"    env-default:"redditrequest.sqlite"`
	DSN        string `yaml:"dsn"         env:"DATABASE_URL"`
}

// EngineConfig holds periodic task settings. Post ages keep the historical
// units: hours for the lower bound, days for the upper one.
type EngineConfig struct {
	DiscoveryInterval time.Duration `yaml:"discovery_interval" env:"DISCOVERY_INTERVAL" env-default:"5m"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"RECONCILE_INTERVAL" env-default:"2h"`
	FirstBatch        int           `yaml:"first_batch"        env:"FIRST_BATCH"        env-default:"250"`
	Batch             int           `yaml:"batch"              env:"BATCH"              env-default:"50"`
	MinPostAgeHours   int           `yaml:"min_post_age"       env:"MIN_POST_AGE"       env-default:"24"`
	MaxPostAgeDays    int           `yaml:"max_post_age"       env:"MAX_POST_AGE"       env-default:"14"`
}

// MinPostAge is the youngest age at which a post is rechecked.
func (e EngineConfig) MinPostAge() time.Duration {
	return time.Duration(e.MinPostAgeHours) * time.Hour
}

// MaxPostAge is the oldest age at which a post is still rechecked.
func (e EngineConfig) MaxPostAge() time.Duration {
	return time.Duration(e.MaxPostAgeDays) * 24 * time.Hour
}

// ClassifierConfig selects whose comment is treated as the verdict.
type ClassifierConfig struct {
	Authority string `yaml:"authority" env:"CLASSIFIER_AUTHORITY" env-default:"flair"`
	Flair     string `yaml:"flair"     env:"CLASSIFIER_FLAIR"     env-default:"admin"`
	Account   string `yaml:"account"   env:"CLASSIFIER_ACCOUNT"   env-default:"request_bot"`
}

// HTTPConfig holds operator HTTP surface settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"             env:"HTTP_ADDR"             env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
