package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Routes registers handlers on a group, putting auth in front when asked.
type Routes struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRoutes(r gin.IRoutes, auth gin.HandlerFunc) *Routes {
	return &Routes{r: r, auth: auth}
}

func (rt *Routes) chain(h HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.auth != nil {
		return []gin.HandlerFunc{rt.auth, Wrap(h)}
	}
	return []gin.HandlerFunc{Wrap(h)}
}

// 封装 POST
func (rt *Routes) POST(path string, h HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.chain(h, opt)...)
}

// 封装 GET
func (rt *Routes) GET(path string, h HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.chain(h, opt)...)
}

func (rt *Routes) DELETE(path string, h HandlerFunc, opt RouteOpt) {
	rt.r.DELETE(path, rt.chain(h, opt)...)
}

func (rt *Routes) PATCH(path string, h HandlerFunc, opt RouteOpt) {
	rt.r.PATCH(path, rt.chain(h, opt)...)
}
