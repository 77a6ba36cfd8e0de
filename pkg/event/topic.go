// Package event 进程内发布/订阅：同步、按订阅顺序投递，处理函数 panic 会被恢复并记录。
package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler 订阅回调
type Handler[T any] func(T)

// Subscription 订阅句柄
type Subscription interface {
	Unsubscribe()
}

// Option 主题选项
type Option[T any] func(*Topic[T])

// WithLogger 记录处理函数 panic 用
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(t *Topic[T]) {
		if l != nil {
			t.log = l
		}
	}
}

// WithCopier 每个订阅者拿到一份独立副本
func WithCopier[T any](copier func(T) T) Option[T] {
	return func(t *Topic[T]) { t.copier = copier }
}

// Topic 单个事件主题
type Topic[T any] struct {
	name   string
	log    *zap.Logger
	copier func(T) T

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn Handler[T]
}

// NewTopic 创建主题
func NewTopic[T any](name string, opts ...Option[T]) *Topic[T] {
	t := &Topic[T]{name: name, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Topic[T]) Name() string { return t.name }

// Subscribe 注册处理函数，nil 处理函数直接忽略
func (t *Topic[T]) Subscribe(fn Handler[T]) Subscription {
	if fn == nil {
		return noopSubscription{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	return &subscription[T]{topic: t, id: id}
}

// Publish 在调用方 goroutine 上依次调用所有订阅者，返回投递成功（未 panic）的数量
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		payload := v
		if t.copier != nil {
			payload = t.copier(v)
		}
		if t.deliver(s, payload) {
			delivered++
		}
	}
	return delivered
}

func (t *Topic[T]) deliver(s subscriber[T], v T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("event handler panicked",
				zap.String("topic", t.name),
				zap.Uint64("subscriber", s.id),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
			ok = false
		}
	}()
	s.fn(v)
	return true
}

// Len 当前订阅者数量
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}

type subscription[T any] struct {
	topic *Topic[T]
	id    uint64
	once  sync.Once
}

func (s *subscription[T]) Unsubscribe() {
	s.once.Do(func() { s.topic.remove(s.id) })
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
