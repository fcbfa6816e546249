package distributed

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrCoreRestricted is returned by EnsureNoCoreRestriction when the process
// may not run on every online CPU.
var ErrCoreRestricted = errors.New("distributed: process is restricted to a subset of cores")

// cpuOnlinePath lists the CPUs the kernel has online, e.g. "0-3,6".
const cpuOnlinePath = "/sys/devices/system/cpu/online"

// parseCPUList parses the kernel's CPU list format.
func parseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty cpu list")
	}
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, errors.Wrapf(err, "cpu list %q", s)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, errors.Wrapf(err, "cpu list %q", s)
			}
		}
		if first < 0 || last < first {
			return nil, errors.Errorf("cpu list %q: bad range %q", s, part)
		}
		for c := first; c <= last; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

// checkCoreRestriction fails with ErrCoreRestricted when allowed excludes
// any of the online CPUs.
func checkCoreRestriction(allowed func(cpu int) bool, online []int) error {
	n := 0
	for _, c := range online {
		if allowed(c) {
			n++
		}
	}
	if n < len(online) {
		return errors.Wrapf(ErrCoreRestricted, "allowed on %d of %d online CPUs", n, len(online))
	}
	return nil
}
