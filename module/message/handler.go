package message

import (
	"context"
	"net/http"
	"strconv"

	"PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	msgmodel "PPDirect/module/message/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/safe"

	"github.com/gin-gonic/gin"
)

// History is the read/delete side of the message store.
type History interface {
	Range(ctx context.Context, a, b int64, page msgmodel.Page) ([]*msgmodel.Message, error)
	Conversations(ctx context.Context, userID int64) ([]*msgmodel.Conversation, error)
	DeleteConversation(ctx context.Context, a, b int64) (int64, error)
}

type Handler struct {
	store History
}

func NewHandler(store History) *Handler {
	return &Handler{store: store}
}

// Mount registers /messages/* on rt; every route needs a bearer token.
func (h *Handler) Mount(rt *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.GET("/messages/conversations", h.Conversations, auth)
	rt.GET("/messages/conversations/:other_user_id", h.Messages, auth)
	rt.DELETE("/messages/conversations/:other_user_id", h.Delete, auth)
}

func (h *Handler) Messages(c *gin.Context) error {
	me, other, err := pair(c)
	if err != nil {
		return err
	}
	page, err := pageOf(c)
	if err != nil {
		return err
	}
	msgs, err := h.store.Range(c.Request.Context(), me, other, page)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*msgmodel.Message{}
	}
	c.JSON(http.StatusOK, msgs)
	return nil
}

func (h *Handler) Conversations(c *gin.Context) error {
	u, ok := midsec.CurrentUser(c)
	if !ok {
		return errs.ErrTokenInvalid.Wrap()
	}
	page, err := pageOf(c)
	if err != nil {
		return err
	}
	all, err := h.store.Conversations(c.Request.Context(), u.ID)
	if err != nil {
		return err
	}
	// 列表按最后消息时间倒序，分页在内存里切
	out := []*msgmodel.Conversation{}
	if page.Offset < len(all) {
		end := min(page.Offset+page.Limit, len(all))
		out = all[page.Offset:end]
	}
	c.JSON(http.StatusOK, out)
	return nil
}

func (h *Handler) Delete(c *gin.Context) error {
	me, other, err := pair(c)
	if err != nil {
		return err
	}
	n, err := h.store.DeleteConversation(c.Request.Context(), me, other)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "Conversation deleted successfully",
		"deleted_messages": n,
	})
	return nil
}

func pair(c *gin.Context) (me, other int64, err error) {
	u, ok := midsec.CurrentUser(c)
	if !ok {
		return 0, 0, errs.ErrTokenInvalid.Wrap()
	}
	other, err = strconv.ParseInt(c.Param("other_user_id"), 10, 64)
	if err != nil || other <= 0 {
		return 0, 0, errs.ErrArgs.WrapMsg("invalid other_user_id", "value", c.Param("other_user_id"))
	}
	return u.ID, other, nil
}

// pageOf reads limit/offset; limit is clamped to [1, MaxPageLimit].
func pageOf(c *gin.Context) (msgmodel.Page, error) {
	p := msgmodel.Page{Limit: msgmodel.DefaultPageLimit}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errs.ErrArgs.WrapMsg("invalid limit", "value", v)
		}
		p.Limit = safe.Clamp(n, 1, msgmodel.MaxPageLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errs.ErrArgs.WrapMsg("invalid offset", "value", v)
		}
		p.Offset = max(n, 0)
	}
	return p, nil
}
