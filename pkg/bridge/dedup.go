package bridge

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// dedupFalsePositive 误判率，误判的消息会被当作重复丢弃
const dedupFalsePositive = 0.0001

// dedup 按 IRCv3 msgid 去重，bouncer 重连后重放的历史消息只转发一次
// 记录数达到容量后清空过滤器重新开始
type dedup struct {
	mu       sync.Mutex
	filter   *bloom.BloomFilter
	capacity uint
	count    uint
}

func newDedup(capacity uint) *dedup {
	if capacity == 0 {
		capacity = 100000
	}
	return &dedup{
		filter:   bloom.NewWithEstimates(capacity, dedupFalsePositive),
		capacity: capacity,
	}
}

// seen 报告 key 是否出现过，未出现时记录
func (d *dedup) seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestOrAddString(key) {
		return true
	}
	d.count++
	if d.count >= d.capacity {
		d.filter.ClearAll()
		d.count = 0
	}
	return false
}
