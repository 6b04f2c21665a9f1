package mailtemplates

import "embed"

// FS contains the embedded email templates from this directory.
//
//go:embed *.html
var FS embed.FS
