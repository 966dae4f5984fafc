package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrFrameTooShort = errors.New("frame too short")
	ErrBadMagic      = errors.New("bad magic")
	ErrTruncated     = errors.New("truncated payload")
)

// Parse 解析一帧。长度字段声明的 payload 不足时拒绝（不做补齐），
// 声明长度之外的多余字节忽略。
func Parse(raw []byte) (*Frame, error) {
	if len(raw) < HeaderSize {
		return nil, ErrFrameTooShort
	}
	if binary.LittleEndian.Uint16(raw[0:2]) != Magic {
		return nil, ErrBadMagic
	}
	cmd := raw[2]
	length := int(raw[3])
	if len(raw) < HeaderSize+length {
		return nil, ErrTruncated
	}
	return &Frame{Cmd: cmd, Payload: raw[HeaderSize : HeaderSize+length]}, nil
}

// Build 构造一帧（请求或响应共用）。payload 超过单帧上限时截断到 MaxPayload。
func Build(code byte, payload []byte) []byte {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	m := make([]byte, 2)
	binary.LittleEndian.PutUint16(m, Magic)
	buf = append(buf, m...)
	buf = append(buf, code, byte(len(payload)))
	buf = append(buf, payload...)
	return buf
}

// StreamDecoder 处理半包/粘包的流式解码器，TCP 连接各持有一个。
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int // 保护上限，避免畸形数据占用过多内存
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = HeaderSize + MaxPayload
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能切出多个完整原始帧
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	if len(p) == 0 {
		return nil
	}
	d.buf = append(d.buf, p...)
	var frames [][]byte

	for {
		// 查找 magic（线缆序 0x55 0xAA）
		start := indexMagic(d.buf)
		if start < 0 {
			// 无 magic，仅保留最后 1 字节以应对跨边界 magic
			if len(d.buf) > 1 {
				d.buf = d.buf[len(d.buf)-1:]
			}
			return frames
		}
		if start > 0 {
			// 丢弃无效前缀
			d.buf = d.buf[start:]
		}
		if len(d.buf) < HeaderSize {
			// 还需要更多字节（magic+cmd+len）
			return frames
		}
		total := HeaderSize + int(d.buf[3])
		if total > d.maxFrameLen {
			// 异常长度，滑动 1 字节继续同步
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < total {
			// 半包，等待更多
			return frames
		}

		frame := make([]byte, total)
		copy(frame, d.buf[:total])
		frames = append(frames, frame)
		d.buf = d.buf[total:]
		if len(d.buf) == 0 {
			return frames
		}
	}
}

// indexMagic 返回缓冲区中下一个 magic 开始位置
func indexMagic(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0x55 && b[i+1] == 0xAA {
			return i
		}
	}
	return -1
}
