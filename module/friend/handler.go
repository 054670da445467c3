package friend

import (
	"context"
	"net/http"
	"strconv"

	"PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	friendmodel "PPDirect/module/friend/model"
	"PPDirect/module/friend/service"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Mount registers /friends/* on rt; every route needs a bearer token.
func (h *Handler) Mount(rt *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.POST("/friends/send_friend_request", h.SendRequest, auth)
	rt.PATCH("/friends/accept/:friend_id", h.Accept, auth)
	rt.PATCH("/friends/block/:friend_id", h.Block, auth)
	rt.DELETE("/friends/removefriend/:friend_id", h.Remove, auth)
	rt.GET("/friends/allfriends", h.Friends, auth)
	rt.GET("/friends/friendrequests", h.Requests, auth)
	rt.GET("/friends/peopleyoumayknow", h.Suggestions, auth)
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func me(c *gin.Context) (int64, error) {
	u, ok := midsec.CurrentUser(c)
	if !ok {
		return 0, errs.ErrTokenInvalid.Wrap()
	}
	return u.ID, nil
}

func pair(c *gin.Context) (int64, int64, error) {
	id, err := me(c)
	if err != nil {
		return 0, 0, err
	}
	other, err := strconv.ParseInt(c.Param("friend_id"), 10, 64)
	if err != nil {
		return 0, 0, errs.ErrArgs.WrapMsg("invalid friend_id", "value", c.Param("friend_id"))
	}
	return id, other, nil
}

func (h *Handler) SendRequest(c *gin.Context) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	var in friendmodel.RequestParams
	if err := c.ShouldBindJSON(&in); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	f, err := h.svc.SendRequest(c.Request.Context(), id, in.ID)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, f)
	return nil
}

func (h *Handler) Accept(c *gin.Context) error {
	id, other, err := pair(c)
	if err != nil {
		return err
	}
	if err := h.svc.Accept(c.Request.Context(), id, other); err != nil {
		return err
	}
	c.JSON(http.StatusOK, result{Success: true, Message: "Friend Request Accepted"})
	return nil
}

func (h *Handler) Block(c *gin.Context) error {
	id, other, err := pair(c)
	if err != nil {
		return err
	}
	if err := h.svc.Block(c.Request.Context(), id, other); err != nil {
		return err
	}
	c.JSON(http.StatusOK, result{Success: true, Message: "successfully blocked"})
	return nil
}

func (h *Handler) Remove(c *gin.Context) error {
	id, other, err := pair(c)
	if err != nil {
		return err
	}
	if err := h.svc.Remove(c.Request.Context(), id, other); err != nil {
		return err
	}
	c.JSON(http.StatusOK, result{Success: true, Message: "Friend Removed"})
	return nil
}

// list renders one of the profile listings for the current user.
func (h *Handler) list(c *gin.Context, fetch func(context.Context, int64) ([]*friendmodel.Profile, error)) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	out, err := fetch(c.Request.Context(), id)
	if err != nil {
		return err
	}
	if out == nil {
		out = []*friendmodel.Profile{}
	}
	c.JSON(http.StatusOK, out)
	return nil
}

func (h *Handler) Friends(c *gin.Context) error     { return h.list(c, h.svc.Friends) }
func (h *Handler) Requests(c *gin.Context) error    { return h.list(c, h.svc.Requests) }
func (h *Handler) Suggestions(c *gin.Context) error { return h.list(c, h.svc.Suggestions) }
