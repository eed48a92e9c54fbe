// Package templates embeds the default configuration shipped by
// argusd setup.
package templates

import "embed"

//go:embed config.yaml
var FS embed.FS
