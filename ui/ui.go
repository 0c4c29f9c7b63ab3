// Package ui embeds the dashboard HTML templates.
package ui

import (
	"embed"
	"io/fs"
)

//go:embed all:templates
var templatesFS embed.FS

// TemplatesFS returns the embedded template filesystem rooted at templates/.
func TemplatesFS() (fs.FS, error) {
	return fs.Sub(templatesFS, "templates")
}
