//go:build windows

package lockfile

import "os"

// pidAlive is a best-effort probe on Windows; FindProcess only fails for
// invalid PIDs, so a held lock is never considered stale here.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func procStartUnix(_ int) int64 { return 0 }
