//go:build linux

package engine

import "golang.org/x/sys/unix"

// NofileLimit reports the current RLIMIT_NOFILE soft limit, for startup
// code to sanity-check the configured connection pool against (each
// connection costs the socket plus up to two transient file fds).
func NofileLimit() (uint64, error) {
	var nofile unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &nofile); err != nil {
		return 0, err
	}
	return nofile.Cur, nil
}

// BootstrapRlimits raises RLIMIT_NOFILE to the kernel-imposed hard
// ceiling (so the configured connection limit can actually be reached)
// and, when lockMemoryBytes is positive, raises RLIMIT_MEMLOCK enough to
// cover the io_uring ring's pinned pages. Both are best-effort: a
// non-root process cannot exceed the hard limit, so failures here are
// reported but never fatal to startup.
func BootstrapRlimits(lockMemoryBytes uint64) error {
	var nofile unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &nofile); err != nil {
		return err
	}
	if nofile.Cur < nofile.Max {
		nofile.Cur = nofile.Max
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &nofile); err != nil {
			return err
		}
	}

	if lockMemoryBytes == 0 {
		return nil
	}
	var memlock unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &memlock); err != nil {
		return err
	}
	if memlock.Cur < lockMemoryBytes && memlock.Cur != unix.RLIM_INFINITY {
		want := lockMemoryBytes
		if memlock.Max != unix.RLIM_INFINITY && want > memlock.Max {
			want = memlock.Max
		}
		memlock.Cur = want
		if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &memlock); err != nil {
			return err
		}
	}
	return nil
}
