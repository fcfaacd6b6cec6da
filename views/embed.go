// Package views embeds the HTML templates rendered by the web routes and the
// invoice archiver.
package views

import "embed"

//go:embed invoices/*.html
var FS embed.FS
