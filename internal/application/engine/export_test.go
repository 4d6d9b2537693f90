package engine

import "time"

// SetNow fija el reloj del engine en tests.
func (e *Engine) SetNow(f func() time.Time) { e.now = f }
