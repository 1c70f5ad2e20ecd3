package gateway

import (
	"net/http"
	"strconv"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/offer"
	"github.com/gin-gonic/gin"
)

func (g *Gateway) listActiveOffers(c *gin.Context) {
	offers, err := g.services.Offers.ListActive(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", offers)
}

// validateCoupon checks a code against the caller without touching the cart.
func (g *Gateway) validateCoupon(c *gin.Context) {
	var req couponRequest
	if !g.bind(c, &req) {
		return
	}
	o, err := g.services.Offers.Redeemable(c.Request.Context(), req.Code, identity(c).UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon is valid", o)
}

func (g *Gateway) adminListOffers(c *gin.Context) {
	p, l := pagination(c)
	f := offer.Filter{Type: models.OfferType(c.Query("type")), Page: p, Limit: l}
	if v := c.Query("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err == nil {
			f.IsActive = &active
		}
	}
	f = f.Normalize()
	offers, total, err := g.services.Offers.List(c.Request.Context(), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", page{Items: offers, Total: total, Page: f.Page, Limit: f.Limit})
}

func (g *Gateway) adminCreateOffer(c *gin.Context) {
	var in offer.Input
	if !g.bind(c, &in) {
		return
	}
	o, err := g.services.Offers.Create(c.Request.Context(), identity(c), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Offer created successfully", o)
}

func (g *Gateway) adminGetOffer(c *gin.Context) {
	o, err := g.services.Offers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", o)
}

func (g *Gateway) adminUpdateOffer(c *gin.Context) {
	var in offer.Input
	if !g.bind(c, &in) {
		return
	}
	o, err := g.services.Offers.Update(c.Request.Context(), identity(c), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Offer updated successfully", o)
}

func (g *Gateway) adminDeactivateOffer(c *gin.Context) {
	if err := g.services.Offers.Deactivate(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Offer deactivated", nil)
}
