package motion

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoloMalteser/EilikCFW/internal/metrics"
	"github.com/MoloMalteser/EilikCFW/internal/servo"
)

func newTestSequencer() (*Sequencer, *servo.Bank) {
	bank := servo.NewBank(rand.New(rand.NewSource(1)))
	seq := NewSequencer(bank, DefaultLibrary(), rand.New(rand.NewSource(2)), nil, nil)
	return seq, bank
}

// TestPlayAnimation 帧按序连发，时间偏移不参与排期：
// 最终落在该舵机的最后一帧目标上
func TestPlayAnimation(t *testing.T) {
	seq, bank := newTestSequencer()

	require.NoError(t, seq.PlayAnimation("wave"))
	s, _ := bank.Get(0)
	assert.Equal(t, uint16(500), s.Target, "last wave frame wins")
	assert.True(t, s.Moving)
}

func TestPlayAnimation_MultiServo(t *testing.T) {
	seq, bank := newTestSequencer()

	require.NoError(t, seq.PlayAnimation("stretch"))
	for _, id := range []uint8{0, 1, 2, 3} {
		s, _ := bank.Get(id)
		assert.Equal(t, uint16(500), s.Target)
		assert.True(t, s.Moving)
	}
}

func TestPlayAnimation_Unknown(t *testing.T) {
	seq, _ := newTestSequencer()
	err := seq.PlayAnimation("moonwalk")
	assert.ErrorIs(t, err, ErrUnknownAnimation)
}

// TestTriggerBehavior 每条 Movement 单次抽取区间内目标
func TestTriggerBehavior(t *testing.T) {
	seq, bank := newTestSequencer()

	require.NoError(t, seq.TriggerBehavior("curious"))

	s0, _ := bank.Get(0)
	assert.GreaterOrEqual(t, s0.Target, uint16(300))
	assert.LessOrEqual(t, s0.Target, uint16(700))
	assert.Equal(t, uint8(20), s0.Speed)
	assert.True(t, s0.Moving)

	s1, _ := bank.Get(1)
	assert.GreaterOrEqual(t, s1.Target, uint16(200))
	assert.LessOrEqual(t, s1.Target, uint16(800))
	assert.Equal(t, uint8(25), s1.Speed)
}

func TestTriggerBehavior_Unknown(t *testing.T) {
	seq, _ := newTestSequencer()
	err := seq.TriggerBehavior("panic")
	assert.ErrorIs(t, err, ErrUnknownBehavior)
}

func TestTriggerBehavior_Deterministic(t *testing.T) {
	bankA := servo.NewBank(rand.New(rand.NewSource(1)))
	bankB := servo.NewBank(rand.New(rand.NewSource(1)))
	seqA := NewSequencer(bankA, DefaultLibrary(), rand.New(rand.NewSource(9)), nil, nil)
	seqB := NewSequencer(bankB, DefaultLibrary(), rand.New(rand.NewSource(9)), nil, nil)

	require.NoError(t, seqA.TriggerBehavior("idle"))
	require.NoError(t, seqB.TriggerBehavior("idle"))

	for _, id := range []uint8{0, 1, 2} {
		a, _ := bankA.Get(id)
		b, _ := bankB.Get(id)
		assert.Equal(t, a.Target, b.Target, "same seed must draw the same targets")
	}
}

// TestTriggerBehavior_Concurrent 多个 HTTP 连接可能同时触发行为，
// 目标抽取必须在 -race 下保持干净
func TestTriggerBehavior_Concurrent(t *testing.T) {
	seq, bank := newTestSequencer()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, seq.TriggerBehavior("curious"))
		}()
	}
	wg.Wait()

	s0, _ := bank.Get(0)
	assert.GreaterOrEqual(t, s0.Target, uint16(300))
	assert.LessOrEqual(t, s0.Target, uint16(700))
}

func TestPlaybackMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	bank := servo.NewBank(rand.New(rand.NewSource(1)))
	seq := NewSequencer(bank, DefaultLibrary(), rand.New(rand.NewSource(2)), nil, appm)

	require.NoError(t, seq.PlayAnimation("wave"))
	require.NoError(t, seq.TriggerBehavior("idle"))
	require.NoError(t, seq.TriggerBehavior("idle"))

	assert.Equal(t, 1.0, testutil.ToFloat64(appm.MotionPlayTotal.WithLabelValues("animation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(appm.MotionPlayTotal.WithLabelValues("behavior")))
}

func TestDefaultLibrary(t *testing.T) {
	lib := DefaultLibrary()
	assert.Len(t, lib.Animations, 3)
	assert.Len(t, lib.Behaviors, 3)
	assert.Len(t, lib.Animations["dance"].Frames, 12)
	assert.Equal(t, "Looking around behavior", lib.Behaviors["curious"].Description)
}

func TestLoadLibrary(t *testing.T) {
	doc := `
animations:
  blink:
    name: Blink
    duration: 0.5
    frames:
      - { servo: 5, position: 300, time: 0.0 }
      - { servo: 5, position: 500, time: 0.5 }
behaviors:
  calm:
    name: Calm
    description: slow drift
    movements:
      - { servo: 2, min: 480, max: 520, speed: 8 }
`
	path := filepath.Join(t.TempDir(), "motions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	require.Contains(t, lib.Animations, "blink")
	assert.Equal(t, uint16(300), lib.Animations["blink"].Frames[0].Position)
	require.Contains(t, lib.Behaviors, "calm")
	assert.Equal(t, uint8(8), lib.Behaviors["calm"].Movements[0].Speed)

	_, err = LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
