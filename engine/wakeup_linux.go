//go:build linux

package engine

import "golang.org/x/sys/unix"

// createWakeFD creates a non-blocking eventfd used to interrupt a blocked
// Pump call from outside the Scheduler's goroutine (the SIGINT handler).
func createWakeFD() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

// writeWakeFD posts one wake-up to fd.
func writeWakeFD(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		return nil // already has a pending wake-up
	}
	return err
}

// drainWakeFD clears all pending wake-ups on fd.
func drainWakeFD(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}
