// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/tensorexec/internal/backend/cpu"
	"github.com/born-ml/tensorexec/engine"
	"github.com/born-ml/tensorexec/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend scheduling on e.
func New(e *engine.Context) *Backend {
	return internalcpu.New(e)
}
