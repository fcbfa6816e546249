//go:build linux

package distributed

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// EnsureNoCoreRestriction fails fast with ErrCoreRestricted when the process
// is pinned to a subset of the online CPUs, as happens when a launcher binds
// each rank to its cores. The mask checked is the main thread's, which every
// other thread inherits at creation. Nothing is widened.
//
// When the online CPU list cannot be read the check is skipped.
func EnsureNoCoreRestriction() error {
	data, err := os.ReadFile(cpuOnlinePath)
	if err != nil {
		klog.V(1).Infof("Skipping core restriction check: %v", err)
		return nil
	}
	online, err := parseCPUList(string(data))
	if err != nil {
		return err
	}

	var set unix.CPUSet
	if err := unix.SchedGetaffinity(os.Getpid(), &set); err != nil {
		return errors.Wrap(err, "sched_getaffinity")
	}
	return checkCoreRestriction(set.IsSet, online)
}
