package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/pager"
)

type catalogHandlers struct {
	svc     catalogService
	fetcher pager.CatalogFetcher
	logger  logrus.FieldLogger
}

func (h *catalogHandlers) products(c *gin.Context) {
	params := c.Request.URL.Query()
	cursor := params.Get(filter.ParamCursor)
	params.Del(filter.ParamCursor)

	page, err := h.fetcher.FetchPage(c.Request.Context(), params, cursor)
	if err != nil {
		h.fail(c, "list products", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *catalogHandlers) collections(c *gin.Context) {
	cols, err := h.svc.Collections(c.Request.Context())
	if err != nil {
		h.fail(c, "list collections", err)
		return
	}
	if cols == nil {
		cols = []domain.Collection{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": cols})
}

func (h *catalogHandlers) vendors(c *gin.Context) {
	vendors, err := h.svc.Vendors(c.Request.Context())
	if err != nil {
		h.fail(c, "list vendors", err)
		return
	}
	if vendors == nil {
		vendors = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"vendors": vendors})
}

func (h *catalogHandlers) fail(c *gin.Context, op string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		requestLog(c, h.logger).WithError(err).Error(op)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Error fetching products"})
	}
}
