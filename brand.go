/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/julienschmidt/httprouter"
)

// registerBrandPage serves the static style guide: palette, type scale,
// voice and the stock result copy. It has no interactive parts.
func registerBrandPage(cfg *Config, path string, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+path, serveEmbedded(cfg, "assets/brand.html", errs))
}
