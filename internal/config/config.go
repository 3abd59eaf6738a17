package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Access   AccessConfig   `mapstructure:"access"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname"`
	Charset   string `mapstructure:"charset"`
	ParseTime bool   `mapstructure:"parse_time"`
	Loc       string `mapstructure:"loc"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
}

// AccessConfig 权限引擎配置
type AccessConfig struct {
	AdminBypassRoles       []string      `mapstructure:"admin_bypass_roles"`        // 无条件放行的角色集合
	EngineDeadline         time.Duration `mapstructure:"engine_deadline"`           // 单次决策的截止时间
	CacheTTL               time.Duration `mapstructure:"cache_ttl"`                 // 决策缓存有效期
	AuditQueueCapacity     int           `mapstructure:"audit_queue_capacity"`      // 审计队列容量
	AuditAllowSamplingRate float64       `mapstructure:"audit_allow_sampling_rate"` // 放行事件采样率，0 表示不记录
	AuditFlushGrace        time.Duration `mapstructure:"audit_flush_grace"`         // 关闭时审计队列冲刷宽限期
	TemplateRoot           string        `mapstructure:"template_root"`             // 模板根目录前缀，可为空
}

// Load 加载配置
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 支持环境变量覆盖
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromFile 从指定文件加载配置
func LoadFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器默认配置
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	// 数据库默认配置
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.user", "postgres")
	viper.SetDefault("database.postgres.password", "")
	viper.SetDefault("database.postgres.dbname", "clinic_access")
	viper.SetDefault("database.postgres.sslmode", "disable")

	// Redis 默认配置
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// JWT 默认配置
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.issuer", "clinic-access-backend")
	viper.SetDefault("jwt.access_expiry", "2h")

	// 权限引擎默认配置
	viper.SetDefault("access.admin_bypass_roles", []string{"SUPER_ADMIN", "ADMIN"})
	viper.SetDefault("access.engine_deadline", "50ms")
	viper.SetDefault("access.cache_ttl", "60s")
	viper.SetDefault("access.audit_queue_capacity", 10000)
	viper.SetDefault("access.audit_allow_sampling_rate", 0.0)
	viper.SetDefault("access.audit_flush_grace", "5s")
	viper.SetDefault("access.template_root", "")
}
