package firmware

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

// CFW 镜像布局（所有多字节字段小端）：
//
//	header[12]  magic "CFW_" | version u16 | flags u16 | checksum u16 | reserved u16
//	config[20]  version string 16B 补零 | feature 开关 4B
//	servos[10]×N  id u8 | status u8 | limitMin u16 | limitMax u16 |
//	              maxTemp u8 | maxVoltage*10 u8 | minVoltage*10 u8 | reserved u8
//
// checksum 的生成顺序必须保持：先以占位 0 参与求和，再回写到偏移 8。
const (
	HeaderSize      = 12
	ConfigBlockSize = 20
	ServoRecordSize = 10

	versionWidth   = 16
	checksumOffset = 8

	imageVersion uint16 = 0x0100
)

var magic = []byte{'C', 'F', 'W', '_'}

var (
	ErrImageTooShort  = errors.New("image too short")
	ErrBadImageMagic  = errors.New("bad image magic")
	ErrBadChecksum    = errors.New("bad image checksum")
	ErrBadImageLength = errors.New("bad image length")
)

// Config 固件配置快照，镜像构建的输入
type Config struct {
	Version          string
	DebugMode        bool
	EnhancedServo    bool
	CustomAnimations bool
	RemoteDebug      bool
}

// ConfigFrom 从应用配置构造快照
func ConfigFrom(cfg cfgpkg.FirmwareConfig) Config {
	return Config{
		Version:          cfg.Version,
		DebugMode:        cfg.DebugMode,
		EnhancedServo:    cfg.EnhancedServo,
		CustomAnimations: cfg.CustomAnimations,
		RemoteDebug:      cfg.RemoteDebug,
	}
}

// ServoRecord 镜像中的单条舵机配置
type ServoRecord struct {
	ID         uint8
	Status     uint8
	LimitMin   uint16
	LimitMax   uint16
	MaxTemp    uint8
	MaxVoltage float64
	MinVoltage float64
}

// RecordsFrom 从舵机组状态构造记录表
func RecordsFrom(states []servo.State) []ServoRecord {
	records := make([]ServoRecord, len(states))
	for i, s := range states {
		records[i] = ServoRecord{
			ID:         s.ID,
			Status:     s.Status,
			LimitMin:   s.Limits.Min,
			LimitMax:   s.Limits.Max,
			MaxTemp:    s.Safety.MaxTemp,
			MaxVoltage: s.Safety.MaxVoltage,
			MinVoltage: s.Safety.MinVoltage,
		}
	}
	return records
}

// Image 解析后的镜像
type Image struct {
	Version  uint16
	Flags    uint16
	Checksum uint16
	Config   Config
	Servos   []ServoRecord
}

// checksum16 累加校验（低16位）
func checksum16(b []byte) uint16 {
	var sum uint32
	for i := 0; i < len(b); i++ {
		sum += uint32(b[i])
	}
	return uint16(sum & 0xFFFF)
}

// Build 序列化镜像。校验和先以 0 占位参与拼接，整段求和后回写
// 偏移 8，产出一经返回即视为不可变。
func Build(cfg Config, records []ServoRecord) []byte {
	buf := make([]byte, 0, HeaderSize+ConfigBlockSize+len(records)*ServoRecordSize)

	// header
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint16(buf, imageVersion)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // flags
	buf = binary.LittleEndian.AppendUint16(buf, 0) // checksum 占位
	buf = binary.LittleEndian.AppendUint16(buf, 0) // reserved

	// config block
	ver := make([]byte, versionWidth)
	copy(ver, cfg.Version)
	buf = append(buf, ver...)
	buf = append(buf, boolByte(cfg.DebugMode), boolByte(cfg.EnhancedServo),
		boolByte(cfg.CustomAnimations), boolByte(cfg.RemoteDebug))

	// servo table
	for _, r := range records {
		buf = append(buf, r.ID, r.Status)
		buf = binary.LittleEndian.AppendUint16(buf, r.LimitMin)
		buf = binary.LittleEndian.AppendUint16(buf, r.LimitMax)
		buf = append(buf, r.MaxTemp, uint8(r.MaxVoltage*10), uint8(r.MinVoltage*10), 0)
	}

	// 事后回写校验和
	sum := checksum16(buf)
	binary.LittleEndian.PutUint16(buf[checksumOffset:checksumOffset+2], sum)
	return buf
}

// Parse 反解析镜像并校验：将校验和字段清零后重新求和比对。
func Parse(raw []byte) (*Image, error) {
	if len(raw) < HeaderSize+ConfigBlockSize {
		return nil, ErrImageTooShort
	}
	if !bytes.Equal(raw[0:4], magic) {
		return nil, ErrBadImageMagic
	}
	if (len(raw)-HeaderSize-ConfigBlockSize)%ServoRecordSize != 0 {
		return nil, ErrBadImageLength
	}

	img := &Image{
		Version:  binary.LittleEndian.Uint16(raw[4:6]),
		Flags:    binary.LittleEndian.Uint16(raw[6:8]),
		Checksum: binary.LittleEndian.Uint16(raw[checksumOffset : checksumOffset+2]),
	}

	zeroed := make([]byte, len(raw))
	copy(zeroed, raw)
	zeroed[checksumOffset] = 0
	zeroed[checksumOffset+1] = 0
	if checksum16(zeroed) != img.Checksum {
		return nil, ErrBadChecksum
	}

	cfgBlock := raw[HeaderSize : HeaderSize+ConfigBlockSize]
	img.Config = Config{
		Version:          string(bytes.TrimRight(cfgBlock[:versionWidth], "\x00")),
		DebugMode:        cfgBlock[versionWidth] != 0,
		EnhancedServo:    cfgBlock[versionWidth+1] != 0,
		CustomAnimations: cfgBlock[versionWidth+2] != 0,
		RemoteDebug:      cfgBlock[versionWidth+3] != 0,
	}

	table := raw[HeaderSize+ConfigBlockSize:]
	for off := 0; off < len(table); off += ServoRecordSize {
		rec := table[off : off+ServoRecordSize]
		img.Servos = append(img.Servos, ServoRecord{
			ID:         rec[0],
			Status:     rec[1],
			LimitMin:   binary.LittleEndian.Uint16(rec[2:4]),
			LimitMax:   binary.LittleEndian.Uint16(rec[4:6]),
			MaxTemp:    rec[6],
			MaxVoltage: float64(rec[7]) / 10,
			MinVoltage: float64(rec[8]) / 10,
		})
	}
	return img, nil
}

// WriteFile 持久化镜像到磁盘
func WriteFile(path string, image []byte) error {
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("write firmware image: %w", err)
	}
	return nil
}

// ReadFile 从磁盘读取并解析镜像
func ReadFile(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware image: %w", err)
	}
	return Parse(raw)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
