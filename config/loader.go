// =============================================================================
// 📦 roundtable 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ROUNDTABLE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 roundtable 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Conversation 对话编排配置
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Store 存储后端配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// LLM 生成服务配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口（0 表示不启动独立指标服务）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 令牌桶容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源（空表示允许全部）
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表（空表示不校验）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 管理接口 JWT 配置
	AdminJWT JWTConfig `yaml:"admin_jwt" env:"ADMIN_JWT"`
}

// JWTConfig 管理接口 JWT 校验配置
type JWTConfig struct {
	// HMAC 密钥（为空时管理接口不做 JWT 校验）
	Secret string `yaml:"secret" env:"SECRET"`
	// 期望的签发者（可选）
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 要求的角色声明
	RequiredRole string `yaml:"required_role" env:"REQUIRED_ROLE"`
}

// ConversationConfig 对话编排配置
type ConversationConfig struct {
	// 两次成功回合之间的最小间隔
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	// 生成租约时长，超时后锁可被回收
	LeaseDuration time.Duration `yaml:"lease_duration" env:"LEASE_DURATION"`
	// 保留的最近消息数
	RetentionCap int `yaml:"retention_cap" env:"RETENTION_CAP"`
	// 提示词中携带的最近消息数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
	// 定时归档间隔
	ArchiveInterval time.Duration `yaml:"archive_interval" env:"ARCHIVE_INTERVAL"`
	// 触发定时归档所需的最少消息数
	ArchiveMinMessages int `yaml:"archive_min_messages" env:"ARCHIVE_MIN_MESSAGES"`
	// 手动快照的最小间隔
	SnapshotSpacing time.Duration `yaml:"snapshot_spacing" env:"SNAPSHOT_SPACING"`
	// 归档列表返回上限
	ArchiveListLimit int `yaml:"archive_list_limit" env:"ARCHIVE_LIST_LIMIT"`
	// 归档预览长度（字符）
	PreviewLength int `yaml:"preview_length" env:"PREVIEW_LENGTH"`
	// 提示词中附带的自定义上下文条数
	MaxContextEntries int `yaml:"max_context_entries" env:"MAX_CONTEXT_ENTRIES"`
	// 提示词中附带的任务摘要条数
	MaxTaskEntries int `yaml:"max_task_entries" env:"MAX_TASK_ENTRIES"`
	// 角色/场景配置文件（为空时使用内置默认阵容）
	RosterFile string `yaml:"roster_file" env:"ROSTER_FILE"`
	// 自动推进配置
	Autopilot AutopilotConfig `yaml:"autopilot" env:"AUTOPILOT"`
}

// AutopilotConfig 进程内自动推进配置
type AutopilotConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 推进间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// StoreConfig 存储后端配置
type StoreConfig struct {
	// 类型: memory, redis, database, mongo
	Type string `yaml:"type" env:"TYPE"`
	// 乐观事务最大尝试次数
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 单次存储操作超时
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"OPERATION_TIMEOUT"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// 关系型数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	// MongoDB 配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`
	// 归档读缓存
	ArchiveCache ArchiveCacheConfig `yaml:"archive_cache" env:"ARCHIVE_CACHE"`
}

// ArchiveCacheConfig 归档记录读缓存配置。归档写入后不可变，按 id 缓存。
type ArchiveCacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// Redis 配置（Addr 为空时复用 store.redis）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动建表
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// LLMConfig 生成服务配置
type LLMConfig struct {
	// Provider 名称: openrouter, openai, deepseek, 或任意 OpenAI 兼容服务
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，覆盖 Provider 默认值）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 最大输出 Token
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// HTTP-Referer 头（OpenRouter 用于应用归属）
	Referer string `yaml:"referer" env:"REFERER"`
	// X-Title 头
	Title string `yaml:"title" env:"TITLE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ROUNDTABLE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验与辅助函数
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	conv := c.Conversation
	if conv.Cooldown < 0 {
		errs = append(errs, "conversation.cooldown must not be negative")
	}
	if conv.LeaseDuration <= 0 {
		errs = append(errs, "conversation.lease_duration must be positive")
	}
	if conv.LeaseDuration > 0 && c.LLM.Timeout > 0 && conv.LeaseDuration <= c.LLM.Timeout {
		errs = append(errs, "conversation.lease_duration must exceed llm.timeout")
	}
	if conv.RetentionCap <= 0 {
		errs = append(errs, "conversation.retention_cap must be positive")
	}
	if conv.ContextWindow <= 0 {
		errs = append(errs, "conversation.context_window must be positive")
	}
	if conv.ArchiveInterval <= 0 {
		errs = append(errs, "conversation.archive_interval must be positive")
	}
	if conv.ArchiveMinMessages <= 0 {
		errs = append(errs, "conversation.archive_min_messages must be positive")
	}
	if conv.SnapshotSpacing < 0 {
		errs = append(errs, "conversation.snapshot_spacing must not be negative")
	}
	if conv.ArchiveListLimit <= 0 {
		errs = append(errs, "conversation.archive_list_limit must be positive")
	}
	if conv.Autopilot.Enabled && conv.Autopilot.Interval <= 0 {
		errs = append(errs, "conversation.autopilot.interval must be positive when enabled")
	}

	switch c.Store.Type {
	case "memory", "redis", "mongo":
	case "database":
		switch c.Store.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Store.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported store type %q", c.Store.Type))
	}
	if c.Store.Type == "mongo" && c.Store.Mongo.URI == "" {
		errs = append(errs, "store.mongo.uri is required")
	}
	if ac := c.Store.ArchiveCache; ac.Enabled {
		if ac.TTL <= 0 {
			errs = append(errs, "store.archive_cache.ttl must be positive when enabled")
		}
		if ac.Redis.Addr == "" && c.Store.Type != "redis" {
			errs = append(errs, "store.archive_cache.redis.addr is required unless store.type is redis")
		}
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, "llm.max_tokens must be positive")
	}
	if c.LLM.Model == "" {
		errs = append(errs, "llm.model is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// MigrationURL 返回 golang-migrate 使用的数据库 URL
func (d *DatabaseConfig) MigrationURL() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	default:
		return ""
	}
}
