package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mangarelay/internal/apierr"
	"mangarelay/internal/logging"
	"mangarelay/internal/metrics"
)

type Handler struct {
	Relay *Relay
}

func NewHandler(r *Relay) *Handler {
	return &Handler{Relay: r}
}

// RegisterRoutes mounts GET <group>/relay-image.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(DefaultPath, h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	ctx := c.Request.Context()
	target := c.Query(Param)

	asset, err := h.Relay.Open(ctx, target)
	if err != nil {
		metrics.RecordRelay("rejected", 0)
		apierr.Respond(c, err)
		return
	}
	defer asset.Close()

	n, err := h.Relay.Stream(c.Writer, asset)
	if err == nil {
		metrics.RecordRelay("ok", n)
		return
	}

	metrics.RecordRelay("aborted", n)
	l := logging.Ctx(ctx)
	ev := l.Error()
	if ctx.Err() != nil {
		ev = l.Warn()
	}
	ev.Err(err).Str("target", target).Int64("bytes", n).Msg("image relay aborted mid-stream")

	// Headers are already out: drop the connection instead of ending the body.
	panic(http.ErrAbortHandler)
}
