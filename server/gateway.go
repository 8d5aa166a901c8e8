package server

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"video-pipeline/pkg/auth"
	"video-pipeline/pkg/encoder"
	"video-pipeline/pkg/layout"
	"video-pipeline/pkg/metrics"
	"video-pipeline/repository"
	"video-pipeline/service"
)

const (
	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/MP2T"
	contentTypeJPEG     = "image/jpeg"
)

// Gateway serves finished HLS artifacts. Anything that is not a known
// rendition, not a segment, escapes the video tree or does not exist is a
// plain 404.
type Gateway struct {
	layout     *layout.Layout
	renditions map[string]struct{}
	videos     service.VideoService
}

func NewGateway(l *layout.Layout, renditions []encoder.Rendition, videos service.VideoService) *Gateway {
	names := make(map[string]struct{}, len(renditions))
	for _, r := range renditions {
		names[r.Name] = struct{}{}
	}
	return &Gateway{layout: l, renditions: names, videos: videos}
}

func (g *Gateway) Register(r gin.IRouter, authenticator auth.Authenticator) {
	group := r.Group("", authRequired(authenticator))
	group.GET("/video/:id/:resolution", g.master)
	group.GET("/video/:id/:resolution/:segment", g.renditionFile)
	group.GET("/thumbnail/:file", g.thumbnail)
	group.GET("/api/videos/:id", g.status)
}

func authRequired(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticator.Authenticate(c.Request) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// master serves /video/:id/master.m3u8. The route shares its shape with
// rendition directories, which are never served bare.
func (g *Gateway) master(c *gin.Context) {
	id, ok := parseId(c.Param("id"))
	if !ok || c.Param("resolution") != layout.MasterManifestName {
		g.notFound(c, "master")
		return
	}
	g.serve(c, "master", g.layout.VideoDir(id), g.layout.MasterManifestPath(id), contentTypeManifest)
}

func (g *Gateway) renditionFile(c *gin.Context) {
	id, ok := parseId(c.Param("id"))
	resolution := c.Param("resolution")
	segment := c.Param("segment")
	if _, known := g.renditions[resolution]; !ok || !known {
		g.notFound(c, "manifest")
		return
	}

	base := g.layout.RenditionDir(id, resolution)
	if segment == layout.ManifestName {
		g.serve(c, "manifest", base, g.layout.ManifestPath(id, resolution), contentTypeManifest)
		return
	}
	if !validSegment(segment) {
		g.notFound(c, "segment")
		return
	}
	g.serve(c, "segment", base, g.layout.SegmentPath(id, resolution, segment), contentTypeSegment)
}

func (g *Gateway) thumbnail(c *gin.Context) {
	name, isJPEG := strings.CutSuffix(c.Param("file"), ".jpg")
	id, ok := parseId(name)
	if !isJPEG || !ok {
		g.notFound(c, "thumbnail")
		return
	}
	g.serve(c, "thumbnail", filepath.Join(g.layout.Root(), layout.ThumbnailDir), g.layout.ThumbnailPath(id), contentTypeJPEG)
}

func (g *Gateway) status(c *gin.Context) {
	id, ok := parseId(c.Param("id"))
	if !ok {
		g.notFound(c, "status")
		return
	}

	status, err := g.videos.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			g.notFound(c, "status")
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("video_id", id.String()).Msg("failed to load video status")
		metrics.GatewayRequests.WithLabelValues("status", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	metrics.GatewayRequests.WithLabelValues("status", "200").Inc()
	c.JSON(http.StatusOK, status)
}

func (g *Gateway) serve(c *gin.Context, kind, base, candidate, contentType string) {
	resolved, err := g.layout.Resolve(base, candidate)
	if err != nil {
		if errors.Is(err, layout.ErrInvalidPath) {
			zerolog.Ctx(c.Request.Context()).Warn().Str("path", c.Request.URL.Path).Msg("rejected path outside media root")
		}
		g.notFound(c, kind)
		return
	}

	f, err := os.Open(resolved)
	if err != nil {
		g.notFound(c, kind)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		g.notFound(c, kind)
		return
	}

	metrics.GatewayRequests.WithLabelValues(kind, "200").Inc()
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

func (g *Gateway) notFound(c *gin.Context, kind string) {
	metrics.GatewayRequests.WithLabelValues(kind, strconv.Itoa(http.StatusNotFound)).Inc()
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func parseId(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func validSegment(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		filepath.Base(name) == name &&
		strings.HasSuffix(name, layout.SegmentExt)
}
