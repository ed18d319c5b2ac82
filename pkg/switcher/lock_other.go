//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package switcher

import "github.com/starsdaisuki/stargate/pkg/util"

// Without flock only the in-process guard applies.
func lockFile(path string) (func(), error) {
	util.Debugf("switch lock %s not supported on this platform", path)
	return func() {}, nil
}
