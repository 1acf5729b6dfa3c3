package ircium

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/errors"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
)

// sendRequest POST /servers/:name/send 请求体
type sendRequest struct {
	Line    string   `json:"line"`
	Command string   `json:"command"`
	Params  []string `json:"params"`
}

// quitRequest POST /servers/:name/quit 请求体
type quitRequest struct {
	Message string `json:"message"`
}

// adminHandler 管理端路由
func (e *Engine) adminHandler() http.Handler {
	silenceGin()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(e.log.Named("admin")))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, Success(gin.H{"connections": e.client.Registry().Count()}))
	})

	servers := r.Group("/servers")
	servers.GET("", e.listServers)
	servers.GET("/:name/recent", e.recentMessages)
	servers.POST("/:name/send", e.sendMessage)
	servers.POST("/:name/quit", e.quitServer)

	if e.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})))
	}
	return r
}

func (e *Engine) listServers(c *gin.Context) {
	conns := e.client.Conns()
	c.JSON(http.StatusOK, ListData(conns, len(conns)))
}

// lookup 按名称查找已连接的服务器，找不到时写入 404
func (e *Engine) lookup(c *gin.Context) *irc.Server {
	s := e.client.FindServerByName(c.Param("name"))
	if s == nil {
		c.JSON(http.StatusNotFound, Fail(errors.Code(irc.ErrNotConnected), "server not connected: "+c.Param("name")))
	}
	return s
}

func (e *Engine) recentMessages(c *gin.Context) {
	if e.archive == nil {
		c.JSON(http.StatusNotFound, Fail(http.StatusNotFound, "archive disabled"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := e.archive.Recent(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Fail(errors.Code(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, ListData(records, len(records)))
}

func (e *Engine) sendMessage(c *gin.Context) {
	s := e.lookup(c)
	if s == nil {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Fail(http.StatusBadRequest, err.Error()))
		return
	}

	var err error
	switch {
	case req.Command != "":
		err = e.client.EnqueueMessage(s, irc.NewMessage(req.Command, req.Params...))
	case req.Line != "":
		err = e.client.EnqueueLine(s, req.Line)
	default:
		c.JSON(http.StatusBadRequest, Fail(http.StatusBadRequest, "line or command is required"))
		return
	}
	if errors.Is(err, irc.ErrInvalidLine) {
		c.JSON(http.StatusBadRequest, Fail(errors.Code(err), err.Error()))
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, Fail(errors.Code(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, Success(nil))
}

func (e *Engine) quitServer(c *gin.Context) {
	s := e.lookup(c)
	if s == nil {
		return
	}
	var req quitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Fail(http.StatusBadRequest, err.Error()))
			return
		}
	}

	var err error
	if req.Message != "" {
		err = e.client.QuitWithMessage(s, req.Message)
	} else {
		err = e.client.Quit(s)
	}
	if err != nil {
		c.JSON(http.StatusConflict, Fail(errors.Code(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, Success(nil))
}

// accessLog 记录请求方法、路径、状态码与耗时
func accessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Debug("request completed", fields...)
		}
	}
}

// silenceGin 静默 Gin 的默认输出
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}
