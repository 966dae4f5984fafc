package servo

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// BankSize 舵机数量为固定值，构造时即确定，协议层按 [0, BankSize) 校验 ID。
const BankSize = 8

// 默认物理参数
const (
	defaultPosition = 500
	defaultSpeed    = 50
	defaultTorque   = 100
	defaultAccel    = 10
	defaultTemp     = 25

	maxSpeed = 100
	maxAccel = 50

	tempCeiling = 80
	tempFloor   = 20
)

var (
	ErrInvalidID  = errors.New("invalid servo id")
	ErrOutOfRange = errors.New("position out of range")
)

// Limits 位置限位
type Limits struct {
	Min uint16 `json:"min"`
	Max uint16 `json:"max"`
}

// Safety 安全阈值
type Safety struct {
	MaxTemp    uint8   `json:"maxTemp"`
	MaxVoltage float64 `json:"maxVoltage"`
	MinVoltage float64 `json:"minVoltage"`
}

// State 单个舵机状态。Bank 初始化时创建一次，此后只做就地更新。
type State struct {
	ID           uint8   `json:"id"`
	Position     uint16  `json:"position"`
	Target       uint16  `json:"target"`
	Speed        uint8   `json:"speed"`
	Acceleration uint8   `json:"acceleration"`
	Torque       uint8   `json:"torque"`
	Temperature  uint8   `json:"temperature"`
	Voltage      float64 `json:"voltage"`
	Status       uint8   `json:"status"`
	Moving       bool    `json:"moving"`
	Limits       Limits  `json:"limits"`
	Safety       Safety  `json:"safety"`
}

// Performance 整机健康摘要
type Performance struct {
	AvgTemperature float64 `json:"avgTemperature"`
	AvgVoltage     float64 `json:"avgVoltage"`
	MovingServos   int     `json:"movingServos"`
}

// Bank 固定 8 路舵机的共享状态。协议分发与仿真时钟并发读写，
// 所有读改写都在同一把锁内完成，避免半更新被另一侧观察到。
type Bank struct {
	mu     sync.Mutex
	servos [BankSize]State
	rng    *rand.Rand
}

// NewBank 创建舵机组。rng 可注入以便测试复现，传 nil 时使用时间种子。
func NewBank(rng *rand.Rand) *Bank {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := &Bank{rng: rng}
	for i := range b.servos {
		b.servos[i] = defaultState(uint8(i))
	}
	return b
}

func defaultState(id uint8) State {
	return State{
		ID:           id,
		Position:     defaultPosition,
		Target:       defaultPosition,
		Speed:        defaultSpeed,
		Acceleration: defaultAccel,
		Torque:       defaultTorque,
		Temperature:  defaultTemp,
		Voltage:      5.0,
		Limits:       Limits{Min: 0, Max: 1000},
		Safety:       Safety{MaxTemp: 80, MaxVoltage: 6.0, MinVoltage: 4.0},
	}
}

// Size 舵机数量
func (b *Bank) Size() int { return BankSize }

// Get 返回指定舵机状态的副本
func (b *Bank) Get(id uint8) (State, error) {
	if int(id) >= BankSize {
		return State{}, ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.servos[id], nil
}

// Snapshot 按 ID 顺序返回全部舵机状态的副本
func (b *Bank) Snapshot() []State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]State, BankSize)
	copy(out, b.servos[:])
	return out
}

// Move 下发目标位置与速度/加速度。越限目标直接拒绝，不做钳位；
// 速度与加速度超出上限则按上限收紧。
func (b *Bank) Move(id uint8, target uint16, speed, accel uint8) error {
	if int(id) >= BankSize {
		return ErrInvalidID
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	if accel > maxAccel {
		accel = maxAccel
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.servos[id]
	if target < s.Limits.Min || target > s.Limits.Max {
		return ErrOutOfRange
	}
	s.Target = target
	s.Speed = speed
	s.Acceleration = accel
	s.Moving = true
	return nil
}

// SetTarget 仅更新目标位置，保留当前速度设置
func (b *Bank) SetTarget(id uint8, target uint16) error {
	if int(id) >= BankSize {
		return ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.servos[id]
	if target < s.Limits.Min || target > s.Limits.Max {
		return ErrOutOfRange
	}
	s.Target = target
	s.Moving = true
	return nil
}

// SetSpeed 更新速度（收紧到上限）
func (b *Bank) SetSpeed(id uint8, speed uint8) error {
	if int(id) >= BankSize {
		return ErrInvalidID
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servos[id].Speed = speed
	return nil
}

// SetParameters 参数写入路径：目标 + 速度 + 扭矩，一并置位 moving
func (b *Bank) SetParameters(id uint8, target uint16, speed, torque uint8) error {
	if int(id) >= BankSize {
		return ErrInvalidID
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.servos[id]
	if target < s.Limits.Min || target > s.Limits.Max {
		return ErrOutOfRange
	}
	s.Target = target
	s.Speed = speed
	s.Torque = torque
	s.Moving = true
	return nil
}

// SetSafety 更新限位与安全阈值
func (b *Bank) SetSafety(id uint8, limits Limits, safety Safety) error {
	if int(id) >= BankSize {
		return ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.servos[id]
	s.Limits = limits
	s.Safety = safety
	return nil
}

// Reset 所有舵机回中位并停止，限位与阈值保留
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.servos {
		s := &b.servos[i]
		s.Position = defaultPosition
		s.Target = defaultPosition
		s.Moving = false
	}
}

// Tick 推进一个仿真节拍：
//   - 运动：step = speed/10（整除），剩余行程不超过 step 时吸附到目标并清除 moving；
//   - 温度：运动中每拍升 [0,2]，封顶 80；静止每拍降 [0,1]，下限 20；
//   - 电压：每拍独立重采样 5.0 ± 0.2，不做累积。
func (b *Bank) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.servos {
		s := &b.servos[i]

		if s.Moving && s.Position != s.Target {
			diff := int(s.Target) - int(s.Position)
			step := int(s.Speed) / 10
			if abs(diff) <= step {
				s.Position = s.Target
				s.Moving = false
			} else if diff > 0 {
				s.Position += uint16(step)
			} else {
				s.Position -= uint16(step)
			}
		}

		if s.Moving {
			t := int(s.Temperature) + b.rng.Intn(3)
			if t > tempCeiling {
				t = tempCeiling
			}
			s.Temperature = uint8(t)
		} else {
			t := int(s.Temperature) - b.rng.Intn(2)
			if t < tempFloor {
				t = tempFloor
			}
			s.Temperature = uint8(t)
		}

		s.Voltage = 5.0 + (b.rng.Float64()*0.4 - 0.2)
	}
}

// MovingCount 当前运动中的舵机数
func (b *Bank) MovingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.servos {
		if b.servos[i].Moving {
			n++
		}
	}
	return n
}

// Performance 平均温度/电压与运动数
func (b *Bank) Performance() Performance {
	b.mu.Lock()
	defer b.mu.Unlock()
	var p Performance
	var temp, volt float64
	for i := range b.servos {
		s := &b.servos[i]
		temp += float64(s.Temperature)
		volt += s.Voltage
		if s.Moving {
			p.MovingServos++
		}
	}
	p.AvgTemperature = temp / BankSize
	p.AvgVoltage = volt / BankSize
	return p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
