// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
)

// Configuration keys read by NewLinearBicycleModel.
const (
	KeyPosX                = "vehicle.posx"
	KeyPosY                = "vehicle.posy"
	KeyHeadingDeg          = "vehicle.headingdeg"
	KeyMinTurningRadiusL   = "vehicle.minimumturningradiusleft"
	KeyMinTurningRadiusR   = "vehicle.minimumturningradiusright"
	KeyWheelbase           = "vehicle.wheelbase"
	KeyMaxSpeed            = "vehicle.maxspeed"
	KeyInvertedSteering    = "vehicle.invertedsteering"
	KeyBatteryVoltage      = "vehicle.batteryvoltage"
	KeyTemperature         = "vehicle.temperature"
	KeyForceControlTimeout = "vehicle.forcecontroltimeout"
)

const (
	defaultWheelbase         = 2.65
	defaultMinTurningRadiusL = 4.85
	defaultMinTurningRadiusR = 5.32
	defaultMaxSpeed          = 10.0
	defaultBatteryVoltage    = 12.6
	defaultTemperature       = 20.0
)

// ErrInvalidParameter is returned for non-positive geometry or speed limits.
var ErrInvalidParameter = errors.New("invalid vehicle parameter")

// LinearBicycleModel is a kinematic single-track model. Steering angles
// are clamped to what the minimum turning radii allow, and speed is clamped
// to [-maxSpeed, maxSpeed].
type LinearBicycleModel struct {
	wheelbase        float64
	maxSteerLeft     float64
	maxSteerRight    float64
	maxSpeed         float64
	invertedSteering bool
	batteryVoltage   float64
	temperature      float64

	x, y     float64
	heading  float64
	speed    float64
	accel    float64
	brake    float64
	steering float64

	lastAccel   float64
	absTraveled float64
	relTraveled float64
}

// NewLinearBicycleModel reads the vehicle.* keys of cfg. Missing keys take
// defaults, malformed ones are errors.
func NewLinearBicycleModel(cfg keyvalue.Configuration) (*LinearBicycleModel, error) {
	var p params

	m := &LinearBicycleModel{
		x:                p.float(cfg, KeyPosX, 0),
		y:                p.float(cfg, KeyPosY, 0),
		heading:          p.float(cfg, KeyHeadingDeg, 0) * math.Pi / 180,
		wheelbase:        p.positive(cfg, KeyWheelbase, defaultWheelbase),
		maxSpeed:         p.positive(cfg, KeyMaxSpeed, defaultMaxSpeed),
		invertedSteering: p.bool(cfg, KeyInvertedSteering),
		batteryVoltage:   p.float(cfg, KeyBatteryVoltage, defaultBatteryVoltage),
		temperature:      p.float(cfg, KeyTemperature, defaultTemperature),
	}

	radiusLeft := p.positive(cfg, KeyMinTurningRadiusL, defaultMinTurningRadiusL)
	radiusRight := p.positive(cfg, KeyMinTurningRadiusR, defaultMinTurningRadiusR)

	if p.err != nil {
		return nil, p.err
	}

	m.maxSteerLeft = math.Atan(m.wheelbase / radiusLeft)
	m.maxSteerRight = math.Atan(m.wheelbase / radiusRight)

	return m, nil
}

// Accelerate sets the commanded acceleration in m/s².
func (m *LinearBicycleModel) Accelerate(a float64) {
	m.accel = a
}

// Brake sets the commanded deceleration in m/s². Negative values are
// treated as zero.
func (m *LinearBicycleModel) Brake(b float64) {
	m.brake = math.Max(b, 0)
}

// Steer sets the steering angle in radians, positive to the left.
func (m *LinearBicycleModel) Steer(delta float64) {
	if m.invertedSteering {
		delta = -delta
	}

	m.steering = math.Max(-m.maxSteerRight, math.Min(delta, m.maxSteerLeft))
}

// SteeringAngle returns the clamped steering angle in radians.
func (m *LinearBicycleModel) SteeringAngle() float64 {
	return m.steering
}

// Step advances the model by dt seconds.
func (m *LinearBicycleModel) Step(dt float64) {
	if dt <= 0 {
		return
	}

	before := m.speed

	speed := m.speed + m.accel*dt
	if m.brake > 0 {
		decel := m.brake * dt
		switch {
		case speed > decel:
			speed -= decel
		case speed < -decel:
			speed += decel
		default:
			speed = 0
		}
	}

	m.speed = math.Max(-m.maxSpeed, math.Min(speed, m.maxSpeed))
	m.lastAccel = (m.speed - before) / dt

	yawRate := m.speed * math.Tan(m.steering) / m.wheelbase
	m.heading = normalizeAngle(m.heading + yawRate*dt)

	m.x += m.speed * math.Cos(m.heading) * dt
	m.y += m.speed * math.Sin(m.heading) * dt

	m.relTraveled = math.Abs(m.speed) * dt
	m.absTraveled += m.relTraveled
}

// EgoState returns the pose and motion in the world frame. Rotation is the
// unit heading vector.
func (m *LinearBicycleModel) EgoState() data.EgoState {
	dir := data.Point3{X: math.Cos(m.heading), Y: math.Sin(m.heading)}

	return data.EgoState{
		Position:     data.Point3{X: m.x, Y: m.y},
		Rotation:     dir,
		Velocity:     dir.Scale(m.speed),
		Acceleration: dir.Scale(m.lastAccel),
	}
}

// VehicleData returns the vehicle's bookkeeping values.
func (m *LinearBicycleModel) VehicleData() data.VehicleData {
	dir := data.Point3{X: math.Cos(m.heading), Y: math.Sin(m.heading)}

	return data.VehicleData{
		Position:        data.Point3{X: m.x, Y: m.y},
		Velocity:        dir.Scale(m.speed),
		Heading:         m.heading,
		AbsTraveledPath: m.absTraveled,
		RelTraveledPath: m.relTraveled,
		Speed:           m.speed,
		VLog:            m.speed,
		VBatt:           m.batteryVoltage,
		Temp:            m.temperature,
	}
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}

	return a - math.Pi
}

// params collects the first configuration error.
type params struct {
	err error
}

func (p *params) float(cfg keyvalue.Configuration, key string, def float64) float64 {
	v, err := cfg.Float(key)
	if errors.Is(err, keyvalue.ErrKeyNotFound) {
		return def
	}

	if err != nil && p.err == nil {
		p.err = err
	}

	return v
}

func (p *params) positive(cfg keyvalue.Configuration, key string, def float64) float64 {
	v := p.float(cfg, key, def)
	if v <= 0 && p.err == nil {
		p.err = fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParameter, key, v)
	}

	return v
}

func (p *params) bool(cfg keyvalue.Configuration, key string) bool {
	v, err := cfg.Bool(key)
	if errors.Is(err, keyvalue.ErrKeyNotFound) {
		return false
	}

	if err != nil && p.err == nil {
		p.err = err
	}

	return v
}
