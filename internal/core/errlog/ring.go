// Package errlog 进程内保留最近的服务端错误，供管理端排查。
package errlog

import (
	"sync"
	"time"
)

const DefaultSize = 100

type Record struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"requestId,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	UserID    int64     `json:"userId,omitempty"`
	Msg       string    `json:"msg"`
	Err       string    `json:"error,omitempty"`
}

// Ring 定长环形缓冲，满了覆盖最旧的
type Ring struct {
	mu   sync.Mutex
	buf  []Record
	next int
	full bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{buf: make([]Record, size)}
}

func (r *Ring) Add(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// List 新的在前
func (r *Ring) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
