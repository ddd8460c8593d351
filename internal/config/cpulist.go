package config

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// maxCPU is CPU_SETSIZE, the number of CPUs a unix.CPUSet can hold.
const maxCPU = 1024

// ParseCPUList parses a kernel-style CPU list such as "0-3,8,10-11".
func ParseCPUList(s string) (*unix.CPUSet, error) {
	var set unix.CPUSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseCPU(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseCPU(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("invalid cpu range %q", part)
			}
		}
		for cpu := first; cpu <= last; cpu++ {
			set.Set(cpu)
		}
	}
	return &set, nil
}

func parseCPU(s string) (int, error) {
	cpu, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid cpu %q: %w", s, err)
	}
	if cpu < 0 || cpu >= maxCPU {
		return 0, fmt.Errorf("cpu %d out of range [0, %d)", cpu, maxCPU)
	}
	return cpu, nil
}
