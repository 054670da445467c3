package user

import (
	"net/http"

	"PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	"PPDirect/module/user/service"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
)

const RefreshCookie = "refresh_token"

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Mount registers /auth/* on rt.
func (h *Handler) Mount(rt *middleware.Routes) {
	rt.POST("/auth/register", h.Register, middleware.RouteOpt{})
	rt.POST("/auth/token", h.Login, middleware.RouteOpt{})
	rt.POST("/auth/refresh", h.Refresh, middleware.RouteOpt{})
	rt.POST("/auth/logout", h.Logout, middleware.RouteOpt{})
	rt.GET("/auth/me", h.Me, middleware.RouteOpt{IsAuth: true})
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) Register(c *gin.Context) error {
	var in service.RegisterParams
	if err := c.ShouldBind(&in); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	u, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		return err
	}
	c.JSON(http.StatusCreated, u.Profile())
	return nil
}

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login accepts an OAuth2 password form or the same fields as JSON.
func (h *Handler) Login(c *gin.Context) error {
	var in loginReq
	if err := c.ShouldBind(&in); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	if in.Username == "" || in.Password == "" {
		return errs.ErrArgs.WrapMsg("username and password are required")
	}
	pair, err := h.svc.Login(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		return err
	}
	h.writeTokens(c, pair)
	return nil
}

func (h *Handler) Refresh(c *gin.Context) error {
	cookie, _ := c.Cookie(RefreshCookie)
	pair, err := h.svc.Refresh(c.Request.Context(), cookie)
	if err != nil {
		return err
	}
	h.writeTokens(c, pair)
	return nil
}

func (h *Handler) Logout(c *gin.Context) error {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
	return nil
}

func (h *Handler) Me(c *gin.Context) error {
	u, ok := midsec.CurrentUser(c)
	if !ok {
		return errs.ErrTokenInvalid.Wrap()
	}
	c.JSON(http.StatusOK, u.Profile())
	return nil
}

func (h *Handler) writeTokens(c *gin.Context, pair *service.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookie, pair.RefreshToken, h.svc.RefreshTTLSeconds(), "/", "", false, true)
	c.JSON(http.StatusOK, tokenResp{AccessToken: pair.AccessToken, TokenType: "bearer"})
}
