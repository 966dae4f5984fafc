package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
	"github.com/MoloMalteser/EilikCFW/internal/device"
	"github.com/MoloMalteser/EilikCFW/internal/firmware"
	"github.com/MoloMalteser/EilikCFW/internal/motion"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

// Deps HTTP 控制台依赖的核心组件。FirmwareOutput 为镜像保存路径。
type Deps struct {
	Bank           *servo.Bank
	Device         *device.Device
	Sequencer      *motion.Sequencer
	Firmware       firmware.Config
	FirmwareOutput string
}

// Server HTTP 服务封装
type Server struct {
	srv *http.Server
}

// New 创建并配置 Gin + HTTP Server：健康检查、指标与设备控制台路由
func New(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		c.String(http.StatusOK, "ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/device", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"device":     deps.Device.Info(),
				"bootloader": deps.Device.InBootloader(),
				"firmware": gin.H{
					"bufferedBytes": deps.Device.FirmwareSize(),
					"flashBytes":    deps.Device.FlashSize(),
				},
			})
		})

		api.GET("/servos", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"servos": deps.Bank.Snapshot()})
		})

		api.PUT("/servos/:id/safety", func(c *gin.Context) {
			id, err := strconv.ParseUint(c.Param("id"), 10, 8)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid servo id"})
				return
			}
			var req struct {
				Limits servo.Limits `json:"limits"`
				Safety servo.Safety `json:"safety"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := deps.Bank.SetSafety(uint8(id), req.Limits, req.Safety); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			state, _ := deps.Bank.Get(uint8(id))
			c.JSON(http.StatusOK, state)
		})

		api.GET("/performance", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Bank.Performance())
		})

		api.GET("/motions", func(c *gin.Context) {
			lib := deps.Sequencer.Library()
			c.JSON(http.StatusOK, gin.H{
				"animations": sortedKeys(lib.Animations),
				"behaviors":  sortedKeys(lib.Behaviors),
			})
		})

		api.POST("/animations/:name", func(c *gin.Context) {
			name := c.Param("name")
			if err := deps.Sequencer.PlayAnimation(name); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, motion.ErrUnknownAnimation) {
					status = http.StatusNotFound
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"played": name})
		})

		api.POST("/behaviors/:name", func(c *gin.Context) {
			name := c.Param("name")
			if err := deps.Sequencer.TriggerBehavior(name); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, motion.ErrUnknownBehavior) {
					status = http.StatusNotFound
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"triggered": name})
		})

		api.GET("/firmware", func(c *gin.Context) {
			image := firmware.Build(deps.Firmware, firmware.RecordsFrom(deps.Bank.Snapshot()))
			c.Header("Content-Disposition", `attachment; filename="eilik-cfw.bin"`)
			c.Data(http.StatusOK, "application/octet-stream", image)
		})

		api.POST("/firmware/save", func(c *gin.Context) {
			path := deps.FirmwareOutput
			if path == "" {
				path = "eilik-cfw.bin"
			}
			image := firmware.Build(deps.Firmware, firmware.RecordsFrom(deps.Bank.Snapshot()))
			if err := firmware.WriteFile(path, image); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"path": path, "bytes": len(image)})
		})
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Handler 暴露底层 http.Handler（测试用）
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
