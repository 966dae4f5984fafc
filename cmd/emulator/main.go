package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
	"github.com/MoloMalteser/EilikCFW/internal/device"
	"github.com/MoloMalteser/EilikCFW/internal/firmware"
	"github.com/MoloMalteser/EilikCFW/internal/httpserver"
	"github.com/MoloMalteser/EilikCFW/internal/logging"
	"github.com/MoloMalteser/EilikCFW/internal/metrics"
	"github.com/MoloMalteser/EilikCFW/internal/motion"
	"github.com/MoloMalteser/EilikCFW/internal/protocol"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
	"github.com/MoloMalteser/EilikCFW/internal/tcpserver"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.App.Name, cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()
	log.Info("emulator starting",
		zap.String("instance", device.InstanceID()),
		zap.String("device_id", cfg.Device.ID))

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	// 4) 舵机组与仿真时钟。rand.Rand 非并发安全，时钟与回放各持一个。
	var bankRNG, motionRNG *rand.Rand
	if cfg.Simulation.Seed != 0 {
		bankRNG = rand.New(rand.NewSource(cfg.Simulation.Seed))
		motionRNG = rand.New(rand.NewSource(cfg.Simulation.Seed + 1))
	}
	bank := servo.NewBank(bankRNG)
	clock := servo.NewClock(bank, cfg.Simulation.TickInterval, log)
	clock.SetOnTick(func() {
		appm.SimTickTotal.Inc()
		appm.ServosMoving.Set(float64(bank.MovingCount()))
	})
	if err := clock.Start(context.Background()); err != nil {
		log.Fatal("clock start error", zap.Error(err))
	}

	// 5) 协议分发
	dev := device.New(cfg.Device)
	dispatcher := protocol.NewDispatcher(log, appm)
	protocol.NewHandlers(bank, dev, log).RegisterAll(dispatcher)

	// 6) 动作库与回放器
	lib := motion.DefaultLibrary()
	if cfg.Motions.File != "" {
		lib, err = motion.LoadLibrary(cfg.Motions.File)
		if err != nil {
			log.Fatal("motion library load error", zap.Error(err))
		}
	}
	seq := motion.NewSequencer(bank, lib, motionRNG, log, appm)

	// 7) HTTP 控制台
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, httpserver.Deps{
		Bank:           bank,
		Device:         dev,
		Sequencer:      seq,
		Firmware:       firmware.ConfigFrom(cfg.Firmware),
		FirmwareOutput: cfg.Firmware.Output,
	})

	// 8) TCP 网关
	tcpSrv := tcpserver.New(cfg.TCP, dispatcher.Dispatch, log, appm)

	// 并行启动
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	if err := tcpSrv.Start(); err != nil {
		log.Fatal("tcp server start error", zap.Error(err))
	}

	// 信号处理，优雅关闭：先停时钟，再关网关与控制台
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	clock.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = tcpSrv.Shutdown(ctx)
	_ = httpSrv.Shutdown(ctx)
	log.Info("emulator stopped")
}
