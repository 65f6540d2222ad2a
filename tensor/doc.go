// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types of the execution engine.
//
// # Overview
//
// A Tensor is a shape, an element type and a storage. Storage starts out on
// the host and is moved into an engine's arena the first time a kernel reads
// it. Kernels never block: results become readable once the tasks writing
// them have finished, and reading a result on the host waits for them.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/tensorexec/backend/cpu"
//	    "github.com/born-ml/tensorexec/engine"
//	    "github.com/born-ml/tensorexec/tensor"
//	)
//
//	func main() {
//	    e, _ := engine.New(engine.DefaultConfig())
//	    defer e.Shutdown(context.Background())
//	    backend := cpu.New(e)
//
//	    a := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	    b := tensor.FromFloat32(tensor.Shape{3}, []float32{10, 20, 30})
//	    c, _ := backend.Binary(tensor.Add, a, b)
//	    values, _ := tensor.Float32Values(c)
//	}
//
// # Supported Data Types
//
// Kernels compute on float32 and int32. Float16, float64, int64, uint8 and
// bool are storage types that are converted when a kernel pins them.
package tensor
