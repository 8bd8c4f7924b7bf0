// Package dashboard embeds the preview inspector UI.
//
// The inspector lists every i-html element on the previewed page with its
// state and last event, kept current through the server's SSE feed.
package dashboard

import "embed"

// Assets holds the inspector page:
//
//	assets/
//	  index.html    - inspector with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
