package motion

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MoloMalteser/EilikCFW/internal/metrics"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

var (
	ErrUnknownAnimation = errors.New("unknown animation")
	ErrUnknownBehavior  = errors.New("unknown behavior")
)

// 动画帧回放时的默认写入参数
const (
	playbackSpeed = 50
	playbackAccel = 10
)

// Sequencer 动作回放器，复用协议写入同一条 Bank 写路径。
// 回放请求可能来自多个 HTTP 连接，rng 非并发安全，由 mu 保护。
type Sequencer struct {
	bank *servo.Bank
	lib  *Library
	mu   sync.Mutex
	rng  *rand.Rand
	log  *zap.Logger
	m    *metrics.AppMetrics
}

// NewSequencer 创建回放器。rng 可注入以便测试复现，传 nil 时使用时间种子；
// m 为 nil 时不上报指标。
func NewSequencer(bank *servo.Bank, lib *Library, rng *rand.Rand, log *zap.Logger, m *metrics.AppMetrics) *Sequencer {
	if lib == nil {
		lib = DefaultLibrary()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequencer{bank: bank, lib: lib, rng: rng, log: log, m: m}
}

// Library 返回当前动作库
func (s *Sequencer) Library() *Library { return s.lib }

func (s *Sequencer) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// PlayAnimation 按帧序连发位置写入，不按时间偏移排期。
func (s *Sequencer) PlayAnimation(name string) error {
	anim, ok := s.lib.Animations[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAnimation, name)
	}
	for _, f := range anim.Frames {
		if err := s.bank.Move(f.Servo, f.Position, playbackSpeed, playbackAccel); err != nil {
			return fmt.Errorf("animation %q frame servo %d: %w", name, f.Servo, err)
		}
	}
	if s.m != nil {
		s.m.MotionPlayTotal.WithLabelValues("animation").Inc()
	}
	s.log.Info("animation played",
		zap.String("animation", anim.Name),
		zap.Int("frames", len(anim.Frames)))
	return nil
}

// TriggerBehavior 每条 Movement 在配置区间内抽取一个目标并写入一次，
// 不做持续重采样。
func (s *Sequencer) TriggerBehavior(name string) error {
	beh, ok := s.lib.Behaviors[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBehavior, name)
	}
	for _, m := range beh.Movements {
		target := m.Min
		if m.Max > m.Min {
			target = m.Min + uint16(s.intn(int(m.Max-m.Min)+1))
		}
		if err := s.bank.Move(m.Servo, target, m.Speed, playbackAccel); err != nil {
			return fmt.Errorf("behavior %q servo %d: %w", name, m.Servo, err)
		}
	}
	if s.m != nil {
		s.m.MotionPlayTotal.WithLabelValues("behavior").Inc()
	}
	s.log.Info("behavior triggered",
		zap.String("behavior", beh.Name),
		zap.Int("movements", len(beh.Movements)))
	return nil
}
