package tcpserver

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
	"github.com/MoloMalteser/EilikCFW/internal/metrics"
	"github.com/MoloMalteser/EilikCFW/internal/protocol"
)

// Server 协议网关：每个连接持有一个流式解码器，切出的完整帧交给
// 分发器，响应原路写回。
type Server struct {
	cfg     cfgpkg.TCPConfig
	ln      net.Listener
	wg      sync.WaitGroup
	stopC   chan struct{}
	handler func([]byte) []byte
	limiter *RateLimiter
	log     *zap.Logger
	m       *metrics.AppMetrics // 可为 nil
}

// New 创建协议网关。handler 为帧级请求-响应函数（Dispatcher.Dispatch）。
func New(cfg cfgpkg.TCPConfig, handler func([]byte) []byte, log *zap.Logger, m *metrics.AppMetrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		stopC:   make(chan struct{}),
		handler: handler,
		limiter: NewRateLimiter(cfg.AcceptPerSec, cfg.AcceptBurst),
		log:     log,
		m:       m,
	}
}

// Addr 返回实际监听地址（监听前为空串）
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("tcp gateway listening", zap.String("addr", s.cfg.Addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				select {
				case <-s.stopC:
					return
				default:
				}
				// 短暂错误等待后重试
				time.Sleep(50 * time.Millisecond)
				continue
			}
			if !s.limiter.Allow() {
				if s.m != nil {
					s.m.TCPRejected.Inc()
				}
				s.log.Warn("connection rejected by accept limiter",
					zap.String("remote_addr", conn.RemoteAddr().String()))
				_ = conn.Close()
				continue
			}
			if s.m != nil {
				s.m.TCPAccepted.Inc()
			}

			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.serveConn(c)
			}(conn)
		}
	}()
	return nil
}

func (s *Server) serveConn(c net.Conn) {
	defer c.Close()

	connID := uuid.New().String()[:8]
	log := s.log.With(
		zap.String("conn", connID),
		zap.String("remote_addr", c.RemoteAddr().String()))
	log.Info("connection accepted")

	dec := protocol.NewStreamDecoder(s.cfg.MaxFrameBytes)
	buf := make([]byte, 4096)
	for {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := c.Read(buf)
		if n > 0 {
			if s.m != nil {
				s.m.TCPBytesReceived.Add(float64(n))
			}
			for _, frame := range dec.Feed(buf[:n]) {
				resp := s.handler(frame)
				if resp == nil {
					continue
				}
				_ = c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				if _, werr := c.Write(resp); werr != nil {
					log.Warn("response write failed", zap.Error(werr))
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				log.Info("connection closed by peer")
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Info("connection idle timeout")
				return
			}
			log.Warn("connection read error", zap.Error(err))
			return
		}
	}
}

// Shutdown 优雅关闭监听并等待连接退出
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopC)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
