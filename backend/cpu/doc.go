// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the batched CPU kernel library.
//
// Each operator validates its operands synchronously, pins them to arena
// buffers and schedules its work on the engine's workers. Operators return
// as soon as the work is scheduled. Ordering between operators follows the
// fences on the buffers they read and write, so results can be chained
// without waiting.
//
// Example:
//
//	e, _ := engine.New(engine.DefaultConfig())
//	backend := cpu.New(e)
//	y, err := backend.MatMul(a, b)
package cpu
