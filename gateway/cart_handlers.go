package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" binding:"gte=0"`
}

type couponRequest struct {
	Code string `json:"code" binding:"required"`
}

func (g *Gateway) getCart(c *gin.Context) {
	cart, err := g.services.Carts.GetCart(c.Request.Context(), identity(c).UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", cart)
}

func (g *Gateway) addCartItem(c *gin.Context) {
	var req addItemRequest
	if !g.bind(c, &req) {
		return
	}
	cart, err := g.services.Carts.AddItem(c.Request.Context(), identity(c).UserID, req.ProductID, req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Item added to cart", cart)
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if !g.bind(c, &req) {
		return
	}
	cart, err := g.services.Carts.UpdateQuantity(c.Request.Context(), identity(c).UserID, c.Param("productId"), req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart updated", cart)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	cart, err := g.services.Carts.RemoveItem(c.Request.Context(), identity(c).UserID, c.Param("productId"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Item removed from cart", cart)
}

func (g *Gateway) clearCart(c *gin.Context) {
	cart, err := g.services.Carts.Clear(c.Request.Context(), identity(c).UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart cleared", cart)
}

func (g *Gateway) applyCoupon(c *gin.Context) {
	var req couponRequest
	if !g.bind(c, &req) {
		return
	}
	cart, err := g.services.Carts.ApplyCoupon(c.Request.Context(), identity(c).UserID, req.Code)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon applied", cart)
}

func (g *Gateway) removeCoupon(c *gin.Context) {
	cart, err := g.services.Carts.RemoveCoupon(c.Request.Context(), identity(c).UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon removed", cart)
}
