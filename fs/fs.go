// Package appfs embeds the static files the binaries need at runtime so a
// deployed binary does not depend on the source tree.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
