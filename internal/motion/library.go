package motion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keyframe 动画关键帧。Time 只是元数据：回放按帧序连发写入，
// 不按时间偏移排期（与参考引擎行为一致）。
type Keyframe struct {
	Servo    uint8   `yaml:"servo" json:"servo"`
	Position uint16  `yaml:"position" json:"position"`
	Time     float64 `yaml:"time" json:"time"`
}

// Animation 具名的有序动作序列
type Animation struct {
	Name     string     `yaml:"name" json:"name"`
	Duration float64    `yaml:"duration" json:"duration"`
	Frames   []Keyframe `yaml:"frames" json:"frames"`
}

// Movement 行为中的单舵机随机游走配置
type Movement struct {
	Servo uint8  `yaml:"servo" json:"servo"`
	Min   uint16 `yaml:"min" json:"min"`
	Max   uint16 `yaml:"max" json:"max"`
	Speed uint8  `yaml:"speed" json:"speed"`
}

// Behavior 具名行为：每次触发为每条 Movement 抽取一个随机目标
type Behavior struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Movements   []Movement `yaml:"movements" json:"movements"`
}

// Library 动画与行为的集合
type Library struct {
	Animations map[string]Animation `yaml:"animations" json:"animations"`
	Behaviors  map[string]Behavior  `yaml:"behaviors" json:"behaviors"`
}

// LoadLibrary 从 YAML 文件加载动作库
func LoadLibrary(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read motion library: %w", err)
	}
	var lib Library
	if err := yaml.Unmarshal(raw, &lib); err != nil {
		return nil, fmt.Errorf("parse motion library: %w", err)
	}
	if lib.Animations == nil {
		lib.Animations = map[string]Animation{}
	}
	if lib.Behaviors == nil {
		lib.Behaviors = map[string]Behavior{}
	}
	return &lib, nil
}

// DefaultLibrary 内置动作库
func DefaultLibrary() *Library {
	return &Library{
		Animations: map[string]Animation{
			"wave": {
				Name:     "Wave",
				Duration: 2.0,
				Frames: []Keyframe{
					{Servo: 0, Position: 800, Time: 0.0},
					{Servo: 0, Position: 200, Time: 1.0},
					{Servo: 0, Position: 500, Time: 2.0},
				},
			},
			"dance": {
				Name:     "Dance",
				Duration: 4.0,
				Frames: []Keyframe{
					{Servo: 0, Position: 700, Time: 0.0},
					{Servo: 1, Position: 300, Time: 0.5},
					{Servo: 2, Position: 600, Time: 1.0},
					{Servo: 3, Position: 400, Time: 1.5},
					{Servo: 0, Position: 300, Time: 2.0},
					{Servo: 1, Position: 700, Time: 2.5},
					{Servo: 2, Position: 400, Time: 3.0},
					{Servo: 3, Position: 600, Time: 3.5},
					{Servo: 0, Position: 500, Time: 4.0},
					{Servo: 1, Position: 500, Time: 4.0},
					{Servo: 2, Position: 500, Time: 4.0},
					{Servo: 3, Position: 500, Time: 4.0},
				},
			},
			"stretch": {
				Name:     "Stretch",
				Duration: 3.0,
				Frames: []Keyframe{
					{Servo: 0, Position: 900, Time: 0.0},
					{Servo: 1, Position: 100, Time: 0.0},
					{Servo: 0, Position: 500, Time: 1.5},
					{Servo: 1, Position: 500, Time: 1.5},
					{Servo: 2, Position: 900, Time: 1.5},
					{Servo: 3, Position: 100, Time: 1.5},
					{Servo: 2, Position: 500, Time: 3.0},
					{Servo: 3, Position: 500, Time: 3.0},
				},
			},
		},
		Behaviors: map[string]Behavior{
			"idle": {
				Name:        "Idle",
				Description: "Gentle idle movement",
				Movements: []Movement{
					{Servo: 0, Min: 450, Max: 550, Speed: 10},
					{Servo: 1, Min: 450, Max: 550, Speed: 15},
					{Servo: 2, Min: 450, Max: 550, Speed: 12},
				},
			},
			"curious": {
				Name:        "Curious",
				Description: "Looking around behavior",
				Movements: []Movement{
					{Servo: 0, Min: 300, Max: 700, Speed: 20},
					{Servo: 1, Min: 200, Max: 800, Speed: 25},
				},
			},
			"sleepy": {
				Name:        "Sleepy",
				Description: "Slow, sleepy movements",
				Movements: []Movement{
					{Servo: 0, Min: 400, Max: 600, Speed: 5},
					{Servo: 1, Min: 400, Max: 600, Speed: 5},
				},
			},
		},
	}
}
