package repository

import "time"

func (r *MemoryIdempotencyRepository) SetClock(now func() time.Time) { r.now = now }
func (r *IdempotencyRepository) SetClock(now func() time.Time)       { r.now = now }
