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

package data

import "math"

// Point3 is a vector in the vehicle's world frame.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point3) Add(o Point3) Point3 {
	return Point3{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

func (p Point3) Scale(f float64) Point3 {
	return Point3{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

func (p Point3) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// ForceControl is the actuator command a driver module sends to a vehicle.
type ForceControl struct {
	Acceleration        float64 `json:"acceleration"`
	Brake               float64 `json:"brake"`
	SteeringForce       float64 `json:"steeringForce"`
	BrakeLights         bool    `json:"brakeLights"`
	LeftFlashingLights  bool    `json:"leftFlashingLights"`
	RightFlashingLights bool    `json:"rightFlashingLights"`
}

// EgoState is the pose and motion of the simulated vehicle.
type EgoState struct {
	Position     Point3 `json:"position"`
	Rotation     Point3 `json:"rotation"`
	Velocity     Point3 `json:"velocity"`
	Acceleration Point3 `json:"acceleration"`
}

// VehicleData is the vehicle's own bookkeeping, published next to EgoState.
type VehicleData struct {
	Position        Point3  `json:"position"`
	Velocity        Point3  `json:"velocity"`
	Heading         float64 `json:"heading"`
	AbsTraveledPath float64 `json:"absTraveledPath"`
	RelTraveledPath float64 `json:"relTraveledPath"`
	Speed           float64 `json:"speed"`
	VLog            float64 `json:"vLog"`
	VBatt           float64 `json:"vBatt"`
	Temp            float64 `json:"temp"`
}

// Heartbeat is the liveness record a module reports to its supercomponent.
type Heartbeat struct {
	Module   string    `json:"module"`
	Instance string    `json:"instance"`
	Sent     TimeStamp `json:"sent"`
	Cycle    uint64    `json:"cycle"`
	State    string    `json:"state"`
}
