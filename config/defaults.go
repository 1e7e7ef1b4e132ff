// =============================================================================
// 📦 roundtable 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Conversation: DefaultConversationConfig(),
		Store:        DefaultStoreConfig(),
		LLM:          DefaultLLMConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second, // 回合请求需等待一次完整生成
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		AdminJWT: JWTConfig{
			RequiredRole: "admin",
		},
	}
}

// DefaultConversationConfig 返回默认对话编排配置
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		Cooldown:           15 * time.Second,
		LeaseDuration:      2 * time.Minute,
		RetentionCap:       100,
		ContextWindow:      5,
		ArchiveInterval:    10 * time.Minute,
		ArchiveMinMessages: 5,
		SnapshotSpacing:    9 * time.Minute,
		ArchiveListLimit:   50,
		PreviewLength:      100,
		MaxContextEntries:  3,
		MaxTaskEntries:     5,
		Autopilot: AutopilotConfig{
			Enabled:  false,
			Interval: 20 * time.Second,
		},
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:             "memory",
		MaxAttempts:      5,
		OperationTimeout: 5 * time.Second,
		Redis:            DefaultRedisConfig(),
		Database:         DefaultDatabaseConfig(),
		Mongo:            DefaultMongoConfig(),
		ArchiveCache: ArchiveCacheConfig{
			Enabled: false,
			TTL:     10 * time.Minute,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "roundtable:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "roundtable",
		Password:        "",
		Name:            "roundtable.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "",
		Database:       "roundtable",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultLLMConfig 返回默认生成服务配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openrouter",
		APIKey:      "",
		BaseURL:     "",
		Model:       "anthropic/claude-sonnet-4",
		MaxTokens:   400,
		Temperature: 0.85,
		Timeout:     60 * time.Second,
		Title:       "Roundtable",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "roundtable",
		SampleRate:   0.1,
	}
}
