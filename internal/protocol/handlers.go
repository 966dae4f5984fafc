package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/MoloMalteser/EilikCFW/internal/device"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

const (
	deviceIDWidth  = 16
	fwVersionWidth = 8

	subCmdSetPosition byte = 0x01
	subCmdSetSpeed    byte = 0x02
	subCmdReadStatus  byte = 0x03
)

// Handlers 命令处理器集合，绑定舵机组与设备状态
type Handlers struct {
	Bank *servo.Bank
	Dev  *device.Device
	Log  *zap.Logger
}

// NewHandlers 创建处理器集合
func NewHandlers(bank *servo.Bank, dev *device.Device, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{Bank: bank, Dev: dev, Log: log}
}

// RegisterAll 按固定命令表注册全部处理器
func (h *Handlers) RegisterAll(d *Dispatcher) {
	d.Register(CmdDeviceInfo, h.DeviceInfo)
	d.Register(CmdFirmwareUpdate, h.FirmwareUpdate)
	d.Register(CmdParameterRead, h.ParameterRead)
	d.Register(CmdParameterWrite, h.ParameterWrite)
	d.Register(CmdServoControl, h.ServoControl)
	d.Register(CmdSensorRead, h.SensorRead)
	d.Register(CmdCalibration, h.Calibration)
	d.Register(CmdReset, h.Reset)
	d.Register(CmdBootloaderMode, h.BootloaderMode)
	d.Register(CmdFlashWrite, h.FlashWrite)
}

func ack() *Response { return &Response{Type: RespACK} }

func nack(msg string) *Response { return &Response{Type: RespNACK, Data: []byte(msg)} }

func fail(msg string) *Response { return &Response{Type: RespERROR, Data: []byte(msg)} }

func data(b []byte) *Response { return &Response{Type: RespDATA, Data: b} }

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// DeviceInfo 0x01：设备 ID（16B 补零）+ 固件版本（8B 补零）+ 硬件版本 u16 + 标志 u16
func (h *Handlers) DeviceInfo(_ []byte) (*Response, error) {
	info := h.Dev.Info()
	buf := make([]byte, 0, deviceIDWidth+fwVersionWidth+4)
	buf = append(buf, padded(info.ID, deviceIDWidth)...)
	buf = append(buf, padded(info.FirmwareVersion, fwVersionWidth)...)
	buf = appendU16(buf, info.HardwareVersion)
	buf = appendU16(buf, info.Flags)
	return data(buf), nil
}

// FirmwareUpdate 0x02：固件分片追加到累积缓冲
func (h *Handlers) FirmwareUpdate(payload []byte) (*Response, error) {
	if len(payload) == 0 {
		return nack("No firmware data"), nil
	}
	total := h.Dev.AppendFirmware(payload)
	h.Log.Info("firmware chunk received",
		zap.Int("chunk_bytes", len(payload)),
		zap.Int("total_bytes", total))
	return ack(), nil
}

// ParameterRead 0x03：地址 0x0000 返回全部舵机参数表
func (h *Handlers) ParameterRead(payload []byte) (*Response, error) {
	if len(payload) < 2 {
		return fail("Invalid parameter address"), nil
	}
	addr := binary.LittleEndian.Uint16(payload[0:2])
	if addr != 0x0000 {
		return fail("Invalid parameter address"), nil
	}
	states := h.Bank.Snapshot()
	buf := make([]byte, 0, len(states)*10)
	for _, s := range states {
		buf = appendServoEntry(buf, s)
	}
	return data(buf), nil
}

// ParameterWrite 0x04：地址 0x0000 写入目标/速度/扭矩
func (h *Handlers) ParameterWrite(payload []byte) (*Response, error) {
	if len(payload) < 4 {
		return fail("Invalid parameter data"), nil
	}
	addr := binary.LittleEndian.Uint16(payload[0:2])
	body := payload[2:]
	if addr != 0x0000 || len(body) < 5 {
		return fail("Invalid parameter"), nil
	}
	id := body[0]
	target := binary.LittleEndian.Uint16(body[1:3])
	speed := body[3]
	torque := body[4]
	if err := h.Bank.SetParameters(id, target, speed, torque); err != nil {
		return h.servoFail(err), nil
	}
	h.Log.Debug("parameter write",
		zap.Uint8("servo", id),
		zap.Uint16("target", target),
		zap.Uint8("speed", speed))
	return ack(), nil
}

// ServoControl 0x05：子命令 0x01 置位置，0x02 置速度，0x03 读状态
func (h *Handlers) ServoControl(payload []byte) (*Response, error) {
	if len(payload) < 4 {
		return fail("Invalid servo command"), nil
	}
	id := payload[0]
	if int(id) >= h.Bank.Size() {
		return fail("Invalid servo ID"), nil
	}

	switch payload[1] {
	case subCmdSetPosition:
		pos := binary.LittleEndian.Uint16(payload[2:4])
		if err := h.Bank.SetTarget(id, pos); err != nil {
			return h.servoFail(err), nil
		}
		h.Log.Debug("servo position set", zap.Uint8("servo", id), zap.Uint16("position", pos))
		return ack(), nil

	case subCmdSetSpeed:
		if err := h.Bank.SetSpeed(id, payload[2]); err != nil {
			return h.servoFail(err), nil
		}
		return ack(), nil

	case subCmdReadStatus:
		s, err := h.Bank.Get(id)
		if err != nil {
			return h.servoFail(err), nil
		}
		return data(appendServoEntry(nil, s)), nil
	}
	return fail("Invalid servo command"), nil
}

// SensorRead 0x06：每舵机 {id u8, temp u8, voltage f32}
func (h *Handlers) SensorRead(_ []byte) (*Response, error) {
	states := h.Bank.Snapshot()
	buf := make([]byte, 0, len(states)*6)
	for _, s := range states {
		buf = append(buf, s.ID, s.Temperature)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(s.Voltage)))
	}
	return data(buf), nil
}

// Calibration 0x07：标定流程占位，直接应答
func (h *Handlers) Calibration(_ []byte) (*Response, error) {
	h.Log.Info("calibration requested")
	return ack(), nil
}

// Reset 0x08：全部舵机回中位
func (h *Handlers) Reset(_ []byte) (*Response, error) {
	h.Bank.Reset()
	h.Log.Info("servo bank reset")
	return ack(), nil
}

// BootloaderMode 0x09：进入 bootloader，放开 flash 写入
func (h *Handlers) BootloaderMode(_ []byte) (*Response, error) {
	h.Dev.EnterBootloader()
	h.Log.Info("entering bootloader mode")
	return ack(), nil
}

// FlashWrite 0x0A：仅 bootloader 模式下允许
func (h *Handlers) FlashWrite(payload []byte) (*Response, error) {
	if err := h.Dev.WriteFlash(payload); err != nil {
		if errors.Is(err, device.ErrNotInBootloader) {
			return fail("Not in bootloader mode"), nil
		}
		return nil, err
	}
	h.Log.Info("flash write", zap.Int("bytes", len(payload)))
	return ack(), nil
}

// servoFail 舵机错误到报文文本的映射
func (h *Handlers) servoFail(err error) *Response {
	switch {
	case errors.Is(err, servo.ErrInvalidID):
		return fail("Invalid servo ID")
	case errors.Is(err, servo.ErrOutOfRange):
		return fail("Position out of range")
	}
	return fail(err.Error())
}

// appendServoEntry 追加一条舵机参数项：
// {id u8, status u8, position u16, target u16, speed u8, torque u8, temp u8, voltage*10 u8}
func appendServoEntry(buf []byte, s servo.State) []byte {
	buf = append(buf, s.ID, s.Status)
	buf = appendU16(buf, s.Position)
	buf = appendU16(buf, s.Target)
	buf = append(buf, s.Speed, s.Torque, s.Temperature, uint8(s.Voltage*10))
	return buf
}

// padded 定宽补零（超宽截断）
func padded(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}
