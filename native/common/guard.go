package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been halted by governance or
// incident response.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view means no
// pause switchboard is configured and every module runs.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
