/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"net/http"
	"path"
	"strconv"

	"github.com/julienschmidt/httprouter"
)

//go:embed favicons/*
var favicons embed.FS

func getFavicon(cfg *Config) string {
	return `<link rel="icon" type="image/svg+xml" href="` + cfg.prefix + `/favicons/favicon.svg">
	<link rel="manifest" href="` + cfg.prefix + `/favicons/site.webmanifest">
	<meta name="theme-color" content="#a855f7">`
}

func serveFavicons(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := path.Join("favicons", path.Clean("/"+p.ByName("favicon")))

		data, err := favicons.ReadFile(fname)
		if err != nil {
			notFound(cfg).ServeHTTP(w, r)

			return
		}

		cacheHeaders(w)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", contentType(fname))
		securityHeaders(cfg, w)

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}
