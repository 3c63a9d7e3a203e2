package meter

import (
	"sync"
	"time"
)

type Cache struct {
	data *Data
	sync.RWMutex
}

func (c *Cache) Get() *Data {
	c.RLock()
	defer c.RUnlock()
	return c.data
}

func (c *Cache) Set(d *Data) {
	c.Lock()
	c.data = d
	c.Unlock()
}

// Fresh returns the cached reading when it is younger than maxAge at now.
func (c *Cache) Fresh(now time.Time, maxAge time.Duration) (*Data, bool) {
	d := c.Get()
	if d == nil || now.Sub(d.Time) > maxAge {
		return nil, false
	}
	return d, true
}
