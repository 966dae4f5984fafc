package protocol

// 帧布局（所有多字节字段小端）：
// magic[2]=0xAA55 | cmd/type[1] | len[1] | payload[len]
// 请求与响应使用完全相同的封帧方式。
const (
	Magic      uint16 = 0xAA55
	HeaderSize        = 4
	MaxPayload        = 255
)

// 命令码
const (
	CmdDeviceInfo     byte = 0x01
	CmdFirmwareUpdate byte = 0x02
	CmdParameterRead  byte = 0x03
	CmdParameterWrite byte = 0x04
	CmdServoControl   byte = 0x05
	CmdSensorRead     byte = 0x06
	CmdCalibration    byte = 0x07
	CmdReset          byte = 0x08
	CmdBootloaderMode byte = 0x09
	CmdFlashWrite     byte = 0x0A
)

// 响应类型
const (
	RespACK   byte = 0x80
	RespNACK  byte = 0x81
	RespDATA  byte = 0x82
	RespERROR byte = 0x83
	RespBUSY  byte = 0x84
	RespREADY byte = 0x85
)

// Frame 解析后的协议帧
type Frame struct {
	Cmd     byte
	Payload []byte
}

// RespName 响应类型名（指标标签用）
func RespName(t byte) string {
	switch t {
	case RespACK:
		return "ack"
	case RespNACK:
		return "nack"
	case RespDATA:
		return "data"
	case RespERROR:
		return "error"
	case RespBUSY:
		return "busy"
	case RespREADY:
		return "ready"
	}
	return "unknown"
}
