package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	"github.com/openmined/modsync/internal/server/handlers/files"
	"github.com/openmined/modsync/internal/server/library"
	"github.com/openmined/modsync/internal/version"
)

// SetupRoutes wires the sync protocol onto a gin engine.
func SetupRoutes(lib *library.Library) http.Handler {
	r := gin.New()

	filesH := files.New(lib)

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(listingGzip())
	r.Use(cors.Default())

	r.GET("/", IndexHandler)
	r.GET("/:folder", filesH.Folder)
	r.GET("/:folder/*path", filesH.Path)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

// listingGzip compresses listings and manifests only. Downloads must keep
// their Content-Length for client side progress.
func listingGzip() gin.HandlerFunc {
	gz := gzip.Gzip(gzip.BestSpeed)
	return func(c *gin.Context) {
		if c.Query("download") == "1" {
			c.Next()
			return
		}
		gz(c)
	}
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
