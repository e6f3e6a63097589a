// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/yllada/campus-vpn/common"
)

// sbinDirs are searched after PATH. Distributions commonly install
// openconnect into an sbin directory that desktop sessions leave off PATH.
var sbinDirs = []string{
	"/sbin",
	"/usr/sbin",
	"/usr/local/sbin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
}

// LocateOpenconnect resolves the openconnect binary. An override is used
// as-is when it contains a path separator, otherwise looked up like the
// default name: PATH first, then the usual sbin directories, and on Windows
// next to the executable and under Program Files.
func LocateOpenconnect(override string) (string, error) {
	name := override
	if name == "" {
		name = "openconnect"
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", common.WrapError(common.ErrSpawn, fmt.Sprintf("openconnect not found at %s", name))
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	if runtime.GOOS == "windows" {
		if path := locateWindows(name); path != "" {
			return path, nil
		}
	} else {
		for _, dir := range sbinDirs {
			path := filepath.Join(dir, name)
			if isExecutable(path) {
				return path, nil
			}
		}
	}
	return "", common.WrapError(common.ErrSpawn, fmt.Sprintf("%s not found (install openconnect or set the binary path in the config)", name))
}

// locateWindows checks next to our own executable and the usual install
// directories.
func locateWindows(name string) string {
	if !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), name)
		if isExecutable(path) {
			return path
		}
	}
	for _, dir := range []string{`C:\Program Files\OpenConnect`, `C:\Program Files (x86)\OpenConnect`} {
		path := filepath.Join(dir, name)
		if isExecutable(path) {
			return path
		}
	}
	return ""
}

// isExecutable reports whether path is a regular file this process could
// run. Windows has no executable bit, so existence is enough there.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
