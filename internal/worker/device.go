package worker

import (
	"bufio"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/ppiankov/sourcerank/internal/model"
)

// A device at or below either limit is treated as constrained
const (
	constrainedMemoryMB = 2048
	constrainedCores    = 2
)

// DeviceProfile is the host capability the scheduler plans against
type DeviceProfile struct {
	MemoryMB    int  `json:"memory_mb"` // 0 when unknown
	Cores       int  `json:"cores"`
	Constrained bool `json:"constrained"`
}

// DetectDevice reads core count and memory from the runtime. The Go memory
// limit wins over physical memory when one is set. An override in cfg
// replaces detection entirely.
func DetectDevice(cfg model.DeviceConfig) DeviceProfile {
	if cfg.Override {
		return newProfile(cfg.MemoryMB, cfg.Cores)
	}

	memMB := 0
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		memMB = int(limit >> 20)
	} else {
		memMB = physicalMemoryMB()
	}
	return newProfile(memMB, runtime.NumCPU())
}

func newProfile(memMB, cores int) DeviceProfile {
	cores = max(cores, 1)
	return DeviceProfile{
		MemoryMB:    memMB,
		Cores:       cores,
		Constrained: (memMB > 0 && memMB < constrainedMemoryMB) || cores <= constrainedCores,
	}
}

// physicalMemoryMB reads MemTotal on Linux and returns 0 elsewhere
func physicalMemoryMB() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0
			}
			return kb / 1024
		}
	}
	return 0
}
