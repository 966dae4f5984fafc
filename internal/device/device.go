package device

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
)

// ErrNotInBootloader 未进入 bootloader 时禁止写 flash
var ErrNotInBootloader = errors.New("not in bootloader mode")

// Info 设备标识信息，DEVICE_INFO 响应的来源
type Info struct {
	ID              string `json:"id"`
	FirmwareVersion string `json:"firmwareVersion"`
	HardwareVersion uint16 `json:"hardwareVersion"`
	Flags           uint16 `json:"flags"`
}

// Device 模拟设备的非舵机状态：标识、bootloader 标志、
// 固件/flash 累积缓冲。FIRMWARE_UPDATE 与 FLASH_WRITE 同步接收任意
// 大小的分片并无界缓冲，这是已知的资源风险点，暂不处理。
type Device struct {
	mu         sync.Mutex
	info       Info
	bootloader bool
	firmware   []byte
	flash      []byte
}

// New 按配置创建设备
func New(cfg cfgpkg.DeviceConfig) *Device {
	return &Device{
		info: Info{
			ID:              cfg.ID,
			FirmwareVersion: cfg.FirmwareVersion,
			HardwareVersion: cfg.HardwareVersion,
			Flags:           cfg.Flags,
		},
	}
}

// Info 返回设备标识
func (d *Device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// AppendFirmware 追加一段固件分片，返回累积总长
func (d *Device) AppendFirmware(chunk []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.firmware = append(d.firmware, chunk...)
	return len(d.firmware)
}

// FirmwareSize 当前累积的固件字节数
func (d *Device) FirmwareSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.firmware)
}

// EnterBootloader 置位 bootloader 标志
func (d *Device) EnterBootloader() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootloader = true
}

// InBootloader 读取 bootloader 标志
func (d *Device) InBootloader() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bootloader
}

// WriteFlash 写入 flash 分片；仅在 bootloader 模式下允许
func (d *Device) WriteFlash(chunk []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bootloader {
		return ErrNotInBootloader
	}
	d.flash = append(d.flash, chunk...)
	return nil
}

// FlashSize 已写入的 flash 字节数
func (d *Device) FlashSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.flash)
}

// InstanceID 生成本进程实例 ID。优先使用环境变量 EILIK_INSTANCE_ID，
// 否则为 eilik-emu-{hostname}-{uuid前8位}。
func InstanceID() string {
	if id := os.Getenv("EILIK_INSTANCE_ID"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	short := uuid.New().String()[:8]
	return fmt.Sprintf("eilik-emu-%s-%s", hostname, short)
}
