// Package cartsession binds a visitor to a cart through a cookie and runs
// cart mutations against the Cart Service.
package cartsession

import (
	"net/http"
	"time"
)

const (
	// CookieName holds the cart identifier.
	CookieName = "cartId"
	// CookieMaxAge is 30 days.
	CookieMaxAge = 30 * 24 * time.Hour
)

// Session reads and writes the visitor's cart identifier.
type Session interface {
	CartID() string
	SetCartID(id string)
}

// Cookies is a Session stored in the cartId cookie. A value set during a
// request is returned by later CartID calls on the same Cookies.
type Cookies struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	written *string
}

func NewCookies(w http.ResponseWriter, r *http.Request, secure bool) *Cookies {
	return &Cookies{w: w, r: r, secure: secure}
}

func (c *Cookies) CartID() string {
	if c.written != nil {
		return *c.written
	}
	ck, err := c.r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c *Cookies) SetCartID(id string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.written = &id
}
