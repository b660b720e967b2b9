// Package web 内嵌服务端渲染使用的 HTML 模板。
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS
