package boot

import (
	"testing"
)

func TestValidateHandoff(t *testing.T) {
	cases := []struct {
		name    string
		version string
		ok      bool
	}{
		{"Supported", "1.4.2", true},
		{"LowerBound", "1.2.0", true},
		{"TooOld", "1.1.9", false},
		{"NextMajor", "2.0.0", false},
		{"Garbage", "not-a-version", false},
		{"Empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHandoff(&Info{ProtocolVersion: tc.version})
			if tc.ok && err != nil {
				t.Errorf("version %q rejected: %v", tc.version, err)
			}
			if !tc.ok && err == nil {
				t.Errorf("version %q accepted", tc.version)
			}
		})
	}

	if err := ValidateHandoff(nil); err == nil {
		t.Error("nil info accepted")
	}
}

func TestNewSimulatedInfo(t *testing.T) {
	const size = 4 * 1024 * 1024

	info, err := NewSimulatedInfo(size)
	if err != nil {
		t.Fatalf("NewSimulatedInfo: %v", err)
	}
	defer info.Release()

	if info.PhysBase == nil {
		t.Error("simulated info must carry a physical mapping base")
	}

	if err := ValidateHandoff(info); err != nil {
		t.Errorf("simulated hand-off invalid: %v", err)
	}

	t.Run("RegionsCoverRAM", func(t *testing.T) {
		var total uintptr
		prevEnd := uintptr(0)
		for _, r := range info.Regions {
			if r.Start != prevEnd {
				t.Errorf("gap before region at %#x", r.Start)
			}
			prevEnd = r.End()
			total += r.Length
		}

		if total != size {
			t.Errorf("regions cover %#x bytes, want %#x", total, uintptr(size))
		}
	})

	t.Run("KindMix", func(t *testing.T) {
		counts := make(map[RegionKind]int)
		for _, r := range info.Regions {
			counts[r.Kind]++
		}

		if counts[RegionUsable] != 2 || counts[RegionReserved] != 2 ||
			counts[RegionKernel] != 1 || counts[RegionBootloader] != 1 {
			t.Errorf("unexpected kind mix: %v", counts)
		}
	})

	t.Run("RootTableZeroed", func(t *testing.T) {
		if info.L4Table == 0 || info.L4Table >= simKernelEnd {
			t.Fatalf("root table at %#x, want inside the kernel region", info.L4Table)
		}

		for i := info.L4Table; i < info.L4Table+4096; i++ {
			if info.ram[i] != 0 {
				t.Fatal("root table frame not zeroed")
			}
		}
	})

	t.Run("DoubleRelease", func(t *testing.T) {
		other, err := NewSimulatedInfo(MinSimulatedRAM)
		if err != nil {
			t.Fatal(err)
		}

		if err := other.Release(); err != nil {
			t.Errorf("first release: %v", err)
		}
		if err := other.Release(); err != nil {
			t.Errorf("second release should be a no-op: %v", err)
		}
	})
}

func TestNewSimulatedInfoTooSmall(t *testing.T) {
	if _, err := NewSimulatedInfo(0x1000); err == nil {
		t.Error("undersized RAM accepted")
	}
}

func TestRegionKindString(t *testing.T) {
	cases := map[RegionKind]string{
		RegionUsable:     "usable",
		RegionReserved:   "reserved",
		RegionKernel:     "kernel",
		RegionBootloader: "bootloader",
		RegionKind(99):   "unknown",
	}

	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", k, got, want)
		}
	}
}
