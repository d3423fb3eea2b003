package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	Gateway  GatewayConfig   `mapstructure:"gateway"`
	OAuth    OAuthConfig     `mapstructure:"oauth"`
	Email    EmailConfig     `mapstructure:"email"`
	OSS      OSSConfig       `mapstructure:"oss"`
	CORS     CORSConfig      `mapstructure:"cors"`
	Plans    map[string]Plan `mapstructure:"plans"`
	Stream   StreamConfig    `mapstructure:"stream"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// GatewayConfig 支付网关配置（印尼钱包扫码渠道）
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MerchantCode   string `mapstructure:"merchant_code"`
	APIKey         string `mapstructure:"api_key"`
	ReturnURL      string `mapstructure:"return_url"`
	CallbackURL    string `mapstructure:"callback_url"`
	Channel        string `mapstructure:"channel"`         // 固定为钱包扫码渠道
	ExpiryMinutes  int    `mapstructure:"expiry_minutes"`  // 账单有效期（分钟）
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 出站请求超时
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Plan 套餐目录（纯配置数据，由营销侧维护，引擎只读）
type Plan struct {
	DisplayName  string `mapstructure:"display_name"`
	Price        int64  `mapstructure:"price"` // 印尼盾，无小数位
	LicenseQuota int    `mapstructure:"license_quota"`
	DurationDays int    `mapstructure:"duration_days"`
	Description  string `mapstructure:"description"`
}

type StreamConfig struct {
	PingSeconds int `mapstructure:"ping_seconds"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Stream.PingSeconds <= 0 {
		cfg.Stream.PingSeconds = 30
	}

	return &cfg, nil
}
