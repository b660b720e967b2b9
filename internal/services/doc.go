// Package services 提供应用的领域服务层：可发布内容、站点设置、"关于我们"版本、访问统计、
// 账号与角色、会话与令牌、上传、留言与审计日志。
// 该层对 handlers 提供较为稳定的接口，避免在 HTTP 层直接操作数据访问或缓存细节。
package services
