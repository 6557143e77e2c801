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

// Package vehicle is the simulated vehicle module. It turns ForceControl
// commands into EgoState and VehicleData with a linear bicycle model.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hesperia-light/hesperia-core/pkg/backoff"
	"github.com/hesperia-light/hesperia-core/pkg/clientmodule"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
)

// ModuleName is the name the vehicle registers under.
const ModuleName = "vehicle"

const defaultForceControlTimeout = time.Second

type lights struct {
	brake, left, right bool
}

// Vehicle implements clientmodule.Worker.
type Vehicle struct {
	model        *LinearBicycleModel
	lights       lights
	inputTimeout time.Duration
	stale        bool
}

func New() *Vehicle {
	return &Vehicle{}
}

// Model returns the model built by SetUp, or nil before.
func (v *Vehicle) Model() *LinearBicycleModel {
	return v.model
}

func (v *Vehicle) SetUp(_ context.Context, mc *clientmodule.Context) error {
	cfg := mc.KeyValueConfiguration()

	model, err := NewLinearBicycleModel(cfg)
	if err != nil {
		return fmt.Errorf("failed to build vehicle model: %w", err)
	}

	v.model = model

	v.inputTimeout, err = cfg.Duration(KeyForceControlTimeout)
	if errors.Is(err, keyvalue.ErrKeyNotFound) {
		v.inputTimeout = defaultForceControlTimeout
	} else if err != nil {
		return err
	}

	es := model.EgoState()
	mc.Logger().Infof("Vehicle starts at (%.2f, %.2f) heading %.1f°", es.Position.X, es.Position.Y, model.VehicleData().Heading*180/math.Pi)

	return nil
}

// Step applies the newest ForceControl, advances one period and publishes
// the new state. A command older than the input timeout is replaced by
// zero throttle and full stop.
func (v *Vehicle) Step(ctx context.Context, mc *clientmodule.Context) error {
	var fc data.ForceControl

	store := mc.DataStore()
	latest := store.Get(data.TypeForceControl)

	switch {
	case latest.IsEmpty():
	case v.inputTimeout > 0 && !store.IsFresh(data.TypeForceControl, v.inputTimeout):
		if !v.stale {
			mc.Logger().Warnf("ForceControl older than %v, braking", v.inputTimeout)
			v.stale = true
		}

		fc = data.ForceControl{Brake: v.model.maxSpeed}
	default:
		if err := latest.Decode(&fc); err != nil {
			return backoff.NewIgnoredError(fmt.Errorf("undecodable ForceControl: %w", err))
		}

		v.stale = false
	}

	v.model.Accelerate(fc.Acceleration)
	v.model.Brake(fc.Brake)
	v.model.Steer(fc.SteeringForce)
	v.updateLights(mc, fc)

	v.model.Step(mc.Period().Seconds())

	es, err := data.NewContainer(data.TypeEgoState, v.model.EgoState())
	if err != nil {
		return err
	}

	vd, err := data.NewContainer(data.TypeVehicleData, v.model.VehicleData())
	if err != nil {
		return err
	}

	if err := mc.Publish(ctx, es); err != nil {
		return err
	}

	return mc.Publish(ctx, vd)
}

func (v *Vehicle) updateLights(mc *clientmodule.Context, fc data.ForceControl) {
	next := lights{brake: fc.BrakeLights, left: fc.LeftFlashingLights, right: fc.RightFlashingLights}
	if next == v.lights {
		return
	}

	log := mc.Logger()
	toggle := func(name string, was, is bool) {
		switch {
		case is && !was:
			log.Infof("Turn ON %s", name)
		case was && !is:
			log.Infof("Turn OFF %s", name)
		}
	}

	toggle("brake lights", v.lights.brake, next.brake)
	toggle("left flashing lights", v.lights.left, next.left)
	toggle("right flashing lights", v.lights.right, next.right)

	v.lights = next
}

func (v *Vehicle) TearDown(_ context.Context, mc *clientmodule.Context) error {
	if v.model == nil {
		return nil
	}

	vd := v.model.VehicleData()
	mc.Logger().Infof("Vehicle stopped at (%.2f, %.2f) after %.2f m", vd.Position.X, vd.Position.Y, vd.AbsTraveledPath)

	return nil
}
