// subsai/config/config.go
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	BaseURL    string `mapstructure:"BASE"`
	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
	UserID     string `mapstructure:"USER_ID"`

	ScratchDir       string        `mapstructure:"SCRATCH_DIR"`
	MaxInputSize     int64         `mapstructure:"MAX_INPUT_SIZE"`
	StopTimeout      time.Duration `mapstructure:"STOP_TIMEOUT"`
	ProgressInterval time.Duration `mapstructure:"PROGRESS_INTERVAL"`

	WhisperBin     string        `mapstructure:"WHISPER_BIN"`
	WhisperModel   string        `mapstructure:"WHISPER_MODEL"`
	WhisperArgs    string        `mapstructure:"WHISPER_ARGS"`
	WhisperTimeout time.Duration `mapstructure:"WHISPER_TIMEOUT"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`

	OllamaHost    string        `mapstructure:"OLLAMA_HOST"`
	OllamaModel   string        `mapstructure:"OLLAMA_MODEL"`
	OllamaTimeout time.Duration `mapstructure:"OLLAMA_TIMEOUT"`

	S3Bucket   string `mapstructure:"S3_BUCKET"`
	S3Region   string `mapstructure:"S3_REGION"`
	S3Endpoint string `mapstructure:"S3_ENDPOINT"`
	S3Folder   string `mapstructure:"S3_FOLDER"`

	OoonaBaseURL      string `mapstructure:"OOONA_BASE_URL"`
	OoonaClientID     string `mapstructure:"OOONA_CLIENT_ID"`
	OoonaClientSecret string `mapstructure:"OOONA_CLIENT_SECRET"`
	OoonaAPIKey       string `mapstructure:"OOONA_API_KEY"`
	OoonaAPIName      string `mapstructure:"OOONA_API_NAME"`

	AnalyticsDB  string `mapstructure:"ANALYTICS_DB"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	RedisChannel string `mapstructure:"REDIS_CHANNEL"`
}

// S3Enabled reports whether uploads have a bucket to go to.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// OoonaEnabled reports whether every credential the OOONA API needs is present.
func (c *Config) OoonaEnabled() bool {
	return c.OoonaBaseURL != "" && c.OoonaClientID != "" && c.OoonaClientSecret != "" &&
		c.OoonaAPIKey != "" && c.OoonaAPIName != ""
}

// stringToDurationHookFunc parses Go duration strings such as "5s" or "1h30m".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "200MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let the default conversion have a go.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "text")
	vp.SetDefault("USER_ID", "")

	vp.SetDefault("SCRATCH_DIR", filepath.Join(os.TempDir(), "subsai_batch_output"))
	vp.SetDefault("MAX_INPUT_SIZE", "2GB")
	vp.SetDefault("STOP_TIMEOUT", "5s")
	vp.SetDefault("PROGRESS_INTERVAL", "1s")

	vp.SetDefault("WHISPER_BIN", "whisper")
	vp.SetDefault("WHISPER_MODEL", "base")
	vp.SetDefault("WHISPER_ARGS", "")
	vp.SetDefault("WHISPER_TIMEOUT", "30m")

	vp.SetDefault("THROTTLE_CPU", 10.0)
	vp.SetDefault("THROTTLE_FREEMEM", "500MB")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")

	vp.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	vp.SetDefault("OLLAMA_MODEL", "deepseek-r1:1.5b")
	vp.SetDefault("OLLAMA_TIMEOUT", "2m")

	vp.SetDefault("S3_BUCKET", "")
	vp.SetDefault("S3_REGION", "us-east-1")
	vp.SetDefault("S3_ENDPOINT", "")
	vp.SetDefault("S3_FOLDER", "batch-processing")

	vp.SetDefault("OOONA_BASE_URL", "")
	vp.SetDefault("OOONA_CLIENT_ID", "")
	vp.SetDefault("OOONA_CLIENT_SECRET", "")
	vp.SetDefault("OOONA_API_KEY", "")
	vp.SetDefault("OOONA_API_NAME", "")

	vp.SetDefault("ANALYTICS_DB", "")
	vp.SetDefault("REDIS_ADDR", "")
	vp.SetDefault("REDIS_CHANNEL", "subsai:events")

	vp.SetConfigName("subsai_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/subsai/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("SUBSAI")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that matches the target type wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
