// Package tlsutil 集中管理出站连接的 TLS 配置：
// 补全服务商的 HTTP 客户端与 Redis 连接（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
