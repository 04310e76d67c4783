package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig `mapstructure:"postgres"` // PostgreSQL配置
	Betting  BettingConfig  `mapstructure:"betting"`  // 下注与结算参数
	Circle   CircleConfig   `mapstructure:"circle"`   // Circle 支付/汇率配置
	Redis    RedisConfig    `mapstructure:"redis"`    // Redis 行情缓存配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// BettingConfig 下注与结算参数
type BettingConfig struct {
	MinBet            float64 `mapstructure:"min_bet"`             // 单笔最小下注（chip）
	MaxBet            float64 `mapstructure:"max_bet"`             // 单笔最大下注（chip）
	MinRakeFraction   float64 `mapstructure:"min_rake_fraction"`   // 事件抽成下限
	MaxRakeFraction   float64 `mapstructure:"max_rake_fraction"`   // 事件抽成上限
	PrizeRakeFraction float64 `mapstructure:"prize_rake_fraction"` // 全局奖池抽成（固定比例）
	EventCreateFee    float64 `mapstructure:"event_create_fee"`    // 用户创建事件扣费，0 表示免费
}

// CircleConfig Circle 支付/汇率配置（提现放款 + 入金汇率）
type CircleConfig struct {
	BaseURL string `mapstructure:"base_url"` // API基础地址（sandbox/production）
	APIKey  string `mapstructure:"api_key"`  // API密钥（建议放 .env）
	Timeout int    `mapstructure:"timeout"`  // 请求超时（秒）
	Proxy   string `mapstructure:"proxy"`    // 代理地址
}

// RedisConfig Redis 行情缓存配置
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`        // Redis地址 host:port
	Password   string `mapstructure:"password"`    // 密码，可空
	DB         int    `mapstructure:"db"`          // 库编号
	TTLSeconds int    `mapstructure:"ttl_seconds"` // 行情缓存有效期（秒）
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CIRCLE_API_KEY"); v != "" {
		cfg.Circle.APIKey = v
	}
	if v := os.Getenv("CIRCLE_PROXY"); v != "" {
		cfg.Circle.Proxy = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

// applyDefaults 补齐未配置的下注/结算参数，避免 0 值导致全部下注被拒
func applyDefaults(cfg *Config) {
	if cfg.Betting.MinBet <= 0 {
		cfg.Betting.MinBet = 1
	}
	if cfg.Betting.MaxBet <= 0 {
		cfg.Betting.MaxBet = 100000
	}
	if cfg.Betting.MaxRakeFraction <= 0 {
		cfg.Betting.MaxRakeFraction = 0.10
	}
	if cfg.Redis.TTLSeconds <= 0 {
		cfg.Redis.TTLSeconds = 10
	}
	if cfg.Betting.PrizeRakeFraction <= 0 {
		cfg.Betting.PrizeRakeFraction = 0.025
	}
}
