// Package config 负责加载与解析进程配置，支持 YAML/JSON 配置文件与默认值合并。
// 站点、数据库、Redis、会话、上传与统计相关参数均集中在此处声明。
package config
