package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront/internal/bridge"
	"storefront/internal/cartsession"
	"storefront/internal/domain"
)

// keepAlive is the interval between comment frames on an idle event stream.
var keepAlive = 25 * time.Second

type cartHandlers struct {
	gateway cartGateway
	signal  *bridge.Signal
	closing <-chan struct{}
	secure  bool
	logger  logrus.FieldLogger
}

func (h *cartHandlers) session(c *gin.Context) cartsession.Session {
	return cartsession.NewCookies(c.Writer, c.Request, h.secure)
}

func (h *cartHandlers) get(c *gin.Context) {
	cart, err := h.gateway.Cart(c.Request.Context(), h.session(c))
	if err != nil {
		requestLog(c, h.logger).WithError(err).Error("read cart")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

func (h *cartHandlers) add(c *gin.Context) {
	res := h.gateway.AddItem(c.Request.Context(), h.session(c), c.PostForm("variantId"))
	h.respond(c, res)
}

func (h *cartHandlers) remove(c *gin.Context) {
	res := h.gateway.RemoveItem(c.Request.Context(), h.session(c), c.PostForm("lineId"))
	h.respond(c, res)
}

func (h *cartHandlers) update(c *gin.Context) {
	// Unparseable quantities count as zero and remove the line.
	qty, err := strconv.Atoi(strings.TrimSpace(c.PostForm("quantity")))
	if err != nil {
		qty = 0
	}
	res := h.gateway.UpdateQuantity(c.Request.Context(), h.session(c), c.PostForm("lineId"), c.PostForm("variantId"), qty)
	h.respond(c, res)
}

func (h *cartHandlers) respond(c *gin.Context, res cartsession.Result) {
	switch {
	case res.OK():
		h.signal.Broadcast()
		c.JSON(http.StatusOK, res)
	case domain.IsValidation(res.Err):
		c.JSON(http.StatusBadRequest, res)
	default:
		c.JSON(http.StatusBadGateway, res)
	}
}

// events streams one cart:changed event per broadcast until the client goes
// away or the server shuts down.
func (h *cartHandlers) events(c *gin.Context) {
	ch, unsubscribe := h.signal.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	_, _ = io.WriteString(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.closing:
			return false
		case <-ch:
			c.SSEvent(bridge.EventCartChanged, "{}")
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}
