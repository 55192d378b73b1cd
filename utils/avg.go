package utils

import "sync"

// AvgVal is a running mean, used for the delta-batch size gauge.
type AvgVal struct {
	v     float64
	count int
	lock  sync.Mutex
}

func (a *AvgVal) Add(val float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.v = (float64(a.count)*a.v + val) / float64(a.count+1)
	a.count++
}

func (a *AvgVal) Val() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.v
}
