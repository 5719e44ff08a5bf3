// Package web 内嵌页面模板
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var files embed.FS

// Templates 解析全部页面模板，模板名为文件名
func Templates() (*template.Template, error) {
	return template.ParseFS(files, "templates/*.html")
}
