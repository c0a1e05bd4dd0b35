// Package devsched implements device discovery and profile selection (C9):
// enumerating compute devices, classifying their vendor/capabilities, and
// picking a slice-size profile shared by every selected device.
//
// No OpenCL binding is imported (see the Non-goals note on Prober below);
// discovery is modeled as a pluggable interface so a real binding can be
// substituted without touching the profile-selection or build-option logic,
// the same host-process-drives-an-external-backend shape
// oisee-z80-optimizer/pkg/gpu/cuda.go uses for its CUDA child process.
package devsched

import "fmt"

// DeviceType distinguishes GPU from CPU compute devices.
type DeviceType int

const (
	TypeGPU DeviceType = iota
	TypeCPU
)

// Vendor classifies a device for capability defaults and build-option
// derivation (Intel's LOWPERF flag, Apple's local-memory exception).
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorNVIDIA
	VendorAMD
	VendorIntel
	VendorApple
)

// Capabilities are the flags §4.7 probes per device.
type Capabilities struct {
	LOP3        bool // ternary bitwise op available (compute-capability probe)
	LocalMemory bool
	Apple       bool // Apple GPUs are exempted from the local-memory requirement
}

// Device is one selectable compute device.
type Device struct {
	PlatformIndex int
	DeviceIndex   int
	Name          string
	Vendor        Vendor
	Type          DeviceType
	Caps          Capabilities
}

// Prober discovers the compute devices available on this host. A real
// implementation would bind to the platform's OpenCL runtime; no such
// binding is wired here — none of the example repos in the pack import
// one, and fabricating a cgo binding without any reference to ground it on
// would violate the no-fabricated-dependency rule, so Prober stays an
// interface any future binding can satisfy without touching the rest of
// this package (Non-goal: real OpenCL enumeration).
type Prober interface {
	Probe() ([]Device, error)
}

// Selector narrows a probed device list to the caller's requested subset:
// Platforms/Devices are index allowlists (nil means "all"), Type further
// restricts by DeviceType (nil matches any type; the CLI sets it whenever
// -D is not 2 (ALL), including when -D is left at its default of 0).
type Selector struct {
	Platforms []int
	Devices   []int
	Type      *DeviceType // nil means match any type
}

// Select filters devices per sel's platform/device/type allowlists.
func Select(devices []Device, sel Selector) []Device {
	platformOK := indexSet(sel.Platforms)
	deviceOK := indexSet(sel.Devices)

	var out []Device
	for _, d := range devices {
		if platformOK != nil && !platformOK[d.PlatformIndex] {
			continue
		}
		if deviceOK != nil && !deviceOK[d.DeviceIndex] {
			continue
		}
		if sel.Type != nil && d.Type != *sel.Type {
			continue
		}
		out = append(out, d)
	}
	return out
}

func indexSet(idx []int) map[int]bool {
	if len(idx) == 0 {
		return nil
	}
	m := make(map[int]bool, len(idx))
	for _, i := range idx {
		m[i] = true
	}
	return m
}

// Profile is a (slice count, chunk bits per slice) pair: how many layer-0
// candidates one work-unit covers, and how many of those bits are consumed
// per inner-enumeration chunk.
type Profile struct {
	SliceCount int
	ChunkBits  int
}

// ProfileTable holds the 11 profiles §4.7 lists (profile 0 for Intel NEO
// GPUs, profile 2 — (4096,7) — for NVIDIA GPUs as the default, profile 10
// for very small devices). Only profiles 0, 1, 2 and 10 are given
// explicitly; the pattern across them (slice count halves, chunk bits
// increments by one per step) is exact at every one of those four points —
// 16384>>i with chunk bits 5+i reproduces (16384,5), (8192,6), (4096,7) and,
// at i=10, (16,15) precisely — so the table is generated from that single
// formula instead of re-typing nine more guessed rows.
var ProfileTable = buildProfileTable()

func buildProfileTable() []Profile {
	profiles := make([]Profile, 11)
	for i := range profiles {
		profiles[i] = Profile{SliceCount: 16384 >> uint(i), ChunkBits: 5 + i}
	}
	return profiles
}

// DefaultProfileIndex returns the profile index §4.7 assigns to d by
// vendor/type default: Intel GPUs get profile 0 (the largest slice count,
// 16384 candidates per work-unit), NVIDIA/AMD GPUs get profile 2, and anything else (CPU devices,
// unknown vendors) gets the most conservative profile 10.
func DefaultProfileIndex(d Device) int {
	switch {
	case d.Type == TypeGPU && d.Vendor == VendorIntel:
		return 0
	case d.Type == TypeGPU && (d.Vendor == VendorNVIDIA || d.Vendor == VendorAMD):
		return 2
	default:
		return len(ProfileTable) - 1
	}
}

// SelectProfile picks the smallest-slice-count profile across devices'
// defaults, so every device shares one slice size — required because the
// work queue (C8) is global and a slice must fit whichever device pops it.
func SelectProfile(devices []Device) (Profile, error) {
	if len(devices) == 0 {
		return Profile{}, fmt.Errorf("devsched: no devices selected")
	}
	best := ProfileTable[DefaultProfileIndex(devices[0])]
	for _, d := range devices[1:] {
		p := ProfileTable[DefaultProfileIndex(d)]
		if p.SliceCount < best.SliceCount {
			best = p
		}
	}
	return best, nil
}

// BuildOptions are the kernel compile-time flags §4.7 derives per device.
type BuildOptions struct {
	HaveLOP3        bool
	WithHitag2Full  bool // on-device verification (mode B from §4.6)
	HaveLocalMemory bool
	LowPerf         bool // Intel GPUs
}

// DeriveBuildOptions computes d's build options. onDeviceVerify selects
// between §4.6's mode A (host verification) and mode B (on-device
// verification, WITH_HITAG2_FULL).
func DeriveBuildOptions(d Device, onDeviceVerify bool) BuildOptions {
	return BuildOptions{
		HaveLOP3:        d.Caps.LOP3,
		WithHitag2Full:  onDeviceVerify,
		HaveLocalMemory: d.Caps.LocalMemory || d.Caps.Apple,
		LowPerf:         d.Type == TypeGPU && d.Vendor == VendorIntel,
	}
}

// Flags renders o as the -D compiler flags a real OpenCL build would pass.
func (o BuildOptions) Flags() []string {
	var flags []string
	if o.HaveLOP3 {
		flags = append(flags, "-D HAVE_LOP3")
	}
	if o.WithHitag2Full {
		flags = append(flags, "-D WITH_HITAG2_FULL")
	}
	if o.HaveLocalMemory {
		flags = append(flags, "-D HAVE_LOCAL_MEMORY")
	}
	if o.LowPerf {
		flags = append(flags, "-D LOWPERF")
	}
	return flags
}
