package manga

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mangarelay/internal/apierr"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

// RegisterRoutes mounts the read API on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search) // GET /search?query=&limit=&offset=

	e := rg.Group("/entities")
	e.GET("", h.browse)                                     // GET /entities?limit=&offset=
	e.GET("/recent", h.recent)                              // GET /entities/recent
	e.GET("/popular", h.popular)                            // GET /entities/popular
	e.GET("/popular-recent", h.popularRecent)               // GET /entities/popular-recent
	e.GET("/:id", h.detail)                                 // GET /entities/:id
	e.GET("/:id/chapters", h.chapters)                      // GET /entities/:id/chapters
	e.GET("/:id/statistics", h.statistics)                  // GET /entities/:id/statistics
	e.GET("/:id/chapters/:chapterId/pages", h.chapterPages) // GET /entities/:id/chapters/:chapterId/pages
}

func (h *Handler) recent(c *gin.Context) {
	items, err := h.Service.RecentlyUpdated(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) popular(c *gin.Context) {
	items, err := h.Service.Popular(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) popularRecent(c *gin.Context) {
	items, err := h.Service.PopularRecent(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) browse(c *gin.Context) {
	page, err := h.Service.Browse(c.Request.Context(),
		parseInt(c.Query("limit"), 0),
		parseInt(c.Query("offset"), 0))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) search(c *gin.Context) {
	page, err := h.Service.Search(c.Request.Context(), c.Query("query"),
		parseInt(c.Query("limit"), 0),
		parseInt(c.Query("offset"), 0))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) detail(c *gin.Context) {
	m, err := h.Service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) chapters(c *gin.Context) {
	items, err := h.Service.Chapters(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) statistics(c *gin.Context) {
	st, err := h.Service.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) chapterPages(c *gin.Context) {
	dataSaver := strings.EqualFold(c.Query("quality"), "data-saver")
	pages, err := h.Service.ChapterPages(c.Request.Context(), c.Param("id"), c.Param("chapterId"), dataSaver)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, pages)
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
