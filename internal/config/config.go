package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 控制台配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// TCPConfig 协议网关配置
type TCPConfig struct {
	Addr          string        `mapstructure:"addr"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
	AcceptPerSec  int           `mapstructure:"acceptPerSec"`
	AcceptBurst   int           `mapstructure:"acceptBurst"`
	MaxFrameBytes int           `mapstructure:"maxFrameBytes"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DeviceConfig 模拟设备标识
type DeviceConfig struct {
	ID              string `mapstructure:"id"`
	FirmwareVersion string `mapstructure:"firmwareVersion"`
	HardwareVersion uint16 `mapstructure:"hardwareVersion"`
	Flags           uint16 `mapstructure:"flags"`
}

// SimulationConfig 舵机物理仿真配置。Seed 为 0 时使用时间种子。
type SimulationConfig struct {
	TickInterval time.Duration `mapstructure:"tickInterval"`
	Seed         int64         `mapstructure:"seed"`
}

// FirmwareConfig CFW 固件镜像构建配置。Output 为保存镜像时的落盘路径。
type FirmwareConfig struct {
	Version          string `mapstructure:"version"`
	DebugMode        bool   `mapstructure:"debugMode"`
	EnhancedServo    bool   `mapstructure:"enhancedServo"`
	CustomAnimations bool   `mapstructure:"customAnimations"`
	RemoteDebug      bool   `mapstructure:"remoteDebug"`
	Output           string `mapstructure:"output"`
}

// MotionsConfig 动作库加载配置。File 为空时使用内置动作库。
type MotionsConfig struct {
	File string `mapstructure:"file"`
}

// Config 顶层配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	TCP        TCPConfig        `mapstructure:"tcp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Device     DeviceConfig     `mapstructure:"device"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Firmware   FirmwareConfig   `mapstructure:"firmware"`
	Motions    MotionsConfig    `mapstructure:"motions"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 EILIK_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = v.GetString("EILIK_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 EILIK_，并将点号替换为下划线
	v.SetEnvPrefix("EILIK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "eilik-cfw-emulator")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("tcp.addr", ":7700")
	v.SetDefault("tcp.readTimeout", "5m")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.acceptPerSec", 100)
	v.SetDefault("tcp.acceptBurst", 200)
	v.SetDefault("tcp.maxFrameBytes", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/eilik-cfw.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("device.id", "EILIK_EMU_001")
	v.SetDefault("device.firmwareVersion", "1.0.0")
	v.SetDefault("device.hardwareVersion", 0x0100)
	v.SetDefault("device.flags", 0)

	v.SetDefault("simulation.tickInterval", "100ms")
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("firmware.version", "CFW-1.0.0")
	v.SetDefault("firmware.debugMode", true)
	v.SetDefault("firmware.enhancedServo", true)
	v.SetDefault("firmware.customAnimations", true)
	v.SetDefault("firmware.remoteDebug", true)
	v.SetDefault("firmware.output", "eilik-cfw.bin")

	v.SetDefault("motions.file", "")
}
