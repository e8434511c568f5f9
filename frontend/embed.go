// Package frontend holds the browser UI shared by the desktop shell and the
// web server.
package frontend

import "embed"

//go:embed index.html app.js
var Assets embed.FS
