package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

type processRefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

func (g *Gateway) checkout(c *gin.Context) {
	var req checkout.Request
	if !g.bind(c, &req) {
		return
	}
	req.UserID = identity(c).UserID
	o, err := g.services.Checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Order created successfully", o)
}

func (g *Gateway) listOrders(c *gin.Context) {
	p, l := pagination(c)
	status := models.OrderStatus(c.Query("status"))
	orders, total, err := g.services.Orders.ListForUser(c.Request.Context(), identity(c), status, p, l)
	if err != nil {
		g.fail(c, err)
		return
	}
	f := order.Filter{Page: p, Limit: l}.Normalize()
	respond(c, http.StatusOK, "", page{Items: orders, Total: total, Page: f.Page, Limit: f.Limit})
}

func (g *Gateway) getOrder(c *gin.Context) {
	o, err := g.services.Orders.Get(c.Request.Context(), identity(c), c.Param("number"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", o)
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength != 0 && !g.bind(c, &req) {
		return
	}
	o, err := g.services.Orders.Cancel(c.Request.Context(), identity(c), c.Param("number"), req.Reason)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled", o)
}

func (g *Gateway) requestRefund(c *gin.Context) {
	var req reasonRequest
	if !g.bind(c, &req) {
		return
	}
	o, err := g.services.Orders.RequestRefund(c.Request.Context(), identity(c), c.Param("number"), req.Reason)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Refund requested", o)
}

// Admin

func (g *Gateway) adminListOrders(c *gin.Context) {
	p, l := pagination(c)
	f := order.Filter{
		UserID: c.Query("user_id"),
		Status: models.OrderStatus(c.Query("status")),
		Page:   p,
		Limit:  l,
	}.Normalize()
	orders, total, err := g.services.Orders.List(c.Request.Context(), identity(c), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", page{Items: orders, Total: total, Page: f.Page, Limit: f.Limit})
}

func (g *Gateway) adminUpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if !g.bind(c, &req) {
		return
	}
	o, err := g.services.Orders.UpdateStatus(c.Request.Context(), identity(c), c.Param("number"), req.Status, req.Note)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated successfully", o)
}

func (g *Gateway) adminProcessRefund(c *gin.Context) {
	var req processRefundRequest
	if !g.bind(c, &req) {
		return
	}
	o, err := g.services.Orders.ProcessRefund(c.Request.Context(), identity(c), c.Param("number"), req.Amount, req.Reason)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Refund processed", o)
}

func (g *Gateway) adminRecalculateOrder(c *gin.Context) {
	o, err := g.services.Orders.Recalculate(c.Request.Context(), identity(c), c.Param("number"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Order totals recalculated", o)
}
