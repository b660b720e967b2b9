// Package handlers 暴露 HTTP 层接口：站点首页、公开内容 API、访问统计、认证与后台管理。
// handlers 内部聚焦输入/输出转换，并委托 services 层完成业务逻辑。
package handlers
