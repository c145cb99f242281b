package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

// The browser voice client ships inside the binary so the relay deploys as a
// single artifact.
//
//go:embed static
var uiAssets embed.FS

func newStaticHandler() http.Handler {
	sub, err := fs.Sub(uiAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(sub))
}
