package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheFresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &Cache{}
	_, ok := c.Fresh(now, time.Minute)
	assert.False(t, ok)

	c.Set(&Data{Time: now.Add(-30 * time.Second), Current_W: 1500})
	d, ok := c.Fresh(now, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, -1.5, d.GridKW())

	_, ok = c.Fresh(now.Add(time.Minute), time.Minute)
	assert.False(t, ok)
}
