// Package dispatch implements the device host (C7): it wires the work
// queue (pkg/workqueue, C8), device/profile selection (pkg/devsched, C9)
// and the per-device scheduler (pkg/scheduler, C10) around the bitsliced
// search engine (pkg/bitslice, C6) to recover a key across however many
// devices are selected.
package dispatch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/RfidResearchGroup/ht2crack/pkg/bitslice"
	"github.com/RfidResearchGroup/ht2crack/pkg/devsched"
	"github.com/RfidResearchGroup/ht2crack/pkg/scheduler"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
	"github.com/RfidResearchGroup/ht2crack/pkg/workqueue"
)

// layerZeroSpace is the size of Attack 5's layer-0 index space (2^20, per
// pkg/bitslice's main enumeration loop).
const layerZeroSpace = 1 << 20

// Config controls a dispatch run.
type Config struct {
	Devices []devsched.Device
	Order   workqueue.Order
	Async   bool // use the async scheduler; sequential batches otherwise
}

// Result is a recovered key, tagged with the session that found it.
type Result struct {
	Key       uint64
	SessionID uuid.UUID
}

// Run slices the layer-0 index space into work-units sized by the profile
// devsched.SelectProfile picks for cfg.Devices, hands one worker per device
// to pkg/scheduler, and has each worker process its units with
// bitslice.SearchRange until one verifies a key or the queue drains.
//
// oisee-z80-optimizer/pkg/gpu/cuda.go drives a literal external device (a
// CUDA child process) over a byte-oriented stdin/stdout protocol; every
// worker here instead calls bitslice.SearchRange directly in-process, since
// no OpenCL/CUDA binding is wired into this module (see pkg/devsched's
// Prober doc comment for why) — but the slice-queue-schedule-verify
// structure cuda.go's host side models is exactly what this package reuses,
// regardless of what eventually executes each unit.
func Run(uid uint32, traces []trace.AuthTrace, cfg Config) (Result, bool, error) {
	if len(cfg.Devices) == 0 {
		return Result{}, false, fmt.Errorf("dispatch: no devices selected")
	}

	profile, err := devsched.SelectProfile(cfg.Devices)
	if err != nil {
		return Result{}, false, err
	}

	sessionID := uuid.New()

	q := workqueue.New(cfg.Order)
	for _, u := range planUnits(layerZeroSpace, uint64(profile.SliceCount)) {
		q.Push(u.ID, u.Offset, u.Max)
	}

	process := func(u workqueue.Unit) (bool, uint64, error) {
		res, found, rangeErr := bitslice.SearchRange(u.Offset, u.Offset+u.Max, uid, traces)
		if rangeErr != nil {
			return false, 0, rangeErr
		}
		return found, res.Key, nil
	}

	workers := make([]*scheduler.Worker, len(cfg.Devices))
	for i := range cfg.Devices {
		workers[i] = scheduler.NewWorker(i, q, process)
	}

	var found bool
	var key uint64
	if cfg.Async {
		sched := scheduler.NewScheduler()
		found, key, err = sched.RunAsync(workers)
	} else {
		found, key, err = scheduler.RunSequential(workers)
	}
	if err != nil {
		return Result{}, false, err
	}
	if !found {
		return Result{}, false, nil
	}
	return Result{Key: key, SessionID: sessionID}, true, nil
}

// planUnits partitions [0, total) into consecutive sliceSize-sized units,
// the last one shortened to fit. Factored out of Run so the partitioning
// logic can be tested at any scale, independent of the real 2^20 layer-0
// space.
func planUnits(total, sliceSize uint64) []workqueue.Unit {
	var units []workqueue.Unit
	var id uint64
	for off := uint64(0); off < total; off += sliceSize {
		max := sliceSize
		if off+max > total {
			max = total - off
		}
		units = append(units, workqueue.Unit{ID: id, Offset: off, Max: max})
		id++
	}
	return units
}
