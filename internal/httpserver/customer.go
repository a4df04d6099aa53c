package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	customersvc "storefront/internal/service/customer"
)

const tokenCookie = "token"

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type customerHandlers struct {
	svc    customerService
	secure bool
	logger logrus.FieldLogger
}

func (h *customerHandlers) signup(c *gin.Context) {
	var req customersvc.SignupInput
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cust, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, domain.ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": "customer already exists"})
		default:
			requestLog(c, h.logger).WithError(err).Error("signup")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"customer": cust})
}

func (h *customerHandlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}
	cust, token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, customersvc.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		requestLog(c, h.logger).WithError(err).Error("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.setToken(c, token, h.svc.SessionTTLSeconds())
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

func (h *customerHandlers) logout(c *gin.Context) {
	if token, err := c.Cookie(tokenCookie); err == nil {
		if err := h.svc.Logout(c.Request.Context(), token); err != nil {
			requestLog(c, h.logger).WithError(err).Warn("revoke token")
		}
	}
	h.setToken(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"customer": nil})
}

// me returns the signed-in customer. A token that no longer resolves is
// treated as an expired session: the cookie is cleared and 401 returned.
func (h *customerHandlers) me(c *gin.Context) {
	token, err := c.Cookie(tokenCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, gin.H{"customer": nil})
		return
	}
	cust, err := h.svc.LookupByToken(c.Request.Context(), token)
	if err != nil {
		requestLog(c, h.logger).WithError(err).Info(domain.ErrAuthExpired.Error())
		h.setToken(c, "", -1)
		c.JSON(http.StatusUnauthorized, gin.H{"customer": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

func (h *customerHandlers) setToken(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, value, maxAge, "/", "", h.secure, true)
}
