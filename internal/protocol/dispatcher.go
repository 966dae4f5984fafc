package protocol

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/MoloMalteser/EilikCFW/internal/metrics"
)

// Response 处理器产出，由 Dispatcher 统一封帧
type Response struct {
	Type byte
	Data []byte
}

// Handler 命令处理器。返回错误时由 Dispatcher 转为 ERROR 响应，
// 不会向调用方传播，保证分发循环持续存活。
type Handler func(payload []byte) (*Response, error)

// Dispatcher 命令分发器（cmd -> handler）
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[byte]Handler
	log      *zap.Logger
	m        *metrics.AppMetrics // 可为 nil
}

// NewDispatcher 创建分发器
func NewDispatcher(log *zap.Logger, m *metrics.AppMetrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[byte]Handler), log: log, m: m}
}

// Register 注册命令处理器
func (d *Dispatcher) Register(cmd byte, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = h
}

// Dispatch 处理一帧原始请求并返回完整响应帧。任何故障都降级为
// ERROR 帧：坏帧、未知命令、处理器错误一律不中断分发。
func (d *Dispatcher) Dispatch(raw []byte) []byte {
	fr, err := Parse(raw)
	if err != nil {
		if d.m != nil {
			d.m.FrameParseTotal.WithLabelValues("error").Inc()
		}
		return d.respond(RespERROR, []byte(parseErrorText(err)))
	}
	if d.m != nil {
		d.m.FrameParseTotal.WithLabelValues("ok").Inc()
		d.m.DispatchTotal.WithLabelValues(fmt.Sprintf("0x%02X", fr.Cmd)).Inc()
	}

	d.mu.RLock()
	h := d.handlers[fr.Cmd]
	d.mu.RUnlock()
	if h == nil {
		d.log.Warn("unknown command", zap.Uint8("cmd", fr.Cmd))
		return d.respond(RespERROR, []byte("Unknown command"))
	}

	resp, err := h(fr.Payload)
	if err != nil {
		d.log.Warn("command failed", zap.Uint8("cmd", fr.Cmd), zap.Error(err))
		return d.respond(RespERROR, []byte(err.Error()))
	}
	return d.respond(resp.Type, resp.Data)
}

func (d *Dispatcher) respond(t byte, data []byte) []byte {
	if d.m != nil {
		d.m.ResponseTotal.WithLabelValues(RespName(t)).Inc()
	}
	return Build(t, data)
}

// parseErrorText 坏帧到报文文本的映射，与参考实现保持一致
func parseErrorText(err error) string {
	switch err {
	case ErrFrameTooShort:
		return "Invalid packet"
	case ErrBadMagic:
		return "Invalid header"
	case ErrTruncated:
		return "Truncated payload"
	}
	return err.Error()
}
