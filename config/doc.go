// Package config 提供 roundtable 的配置管理功能。
//
// 配置按"默认值 → YAML 文件 → ROUNDTABLE_* 环境变量"的顺序叠加，
// 由 Loader 构建并经 Config.Validate 统一校验。
package config
