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

package clientmodule

// ModuleState is the coarse state a module reports to its supercomponent.
type ModuleState string

const (
	StateRunning    ModuleState = "RUNNING"
	StateNotRunning ModuleState = "NOT_RUNNING"
)

// ExitCode is the terminal status of RunModule.
type ExitCode int

const (
	ExitOkay ExitCode = iota
	// ExitExceptionCaught means a panic in the worker was recovered.
	ExitExceptionCaught
	// ExitSeriousError means set up or a step failed with a non-ignorable
	// error.
	ExitSeriousError
	// ExitConnectionLost means the supercomponent stopped answering and the
	// module chose to terminate.
	ExitConnectionLost
	// ExitNoSupercomponent means the initial connect failed.
	ExitNoSupercomponent
)

var exitCodeNames = map[ExitCode]string{
	ExitOkay:             "OKAY",
	ExitExceptionCaught:  "EXCEPTION_CAUGHT",
	ExitSeriousError:     "SERIOUS_ERROR",
	ExitConnectionLost:   "CONNECTION_LOST",
	ExitNoSupercomponent: "NO_SUPERCOMPONENT",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}

	return "UNKNOWN"
}

// ProcessExitCode maps c onto a process exit status. OKAY is 0.
func (c ExitCode) ProcessExitCode() int {
	return int(c)
}
