package router

import (
	"sort"
	"sync"

	"blog-account-server/internal/transport/http/ez"
)

// APIModule 模块可选择实现其中一个或两个接口
type APIModule interface{ MountAPI(ez.EZ) }
type AdminModule interface{ MountAdmin(ez.EZ) }

// 可选：实现该接口可控制挂载顺序（数值越小越先挂）
// 不实现则默认 100
type prioritizer interface{ Priority() int }

// Registry 每个进程装配一份，测试之间互不影响
type Registry struct {
	mu        sync.RWMutex
	apiMods   []APIModule
	adminMods []AdminModule
}

func NewRegistry(mods ...any) *Registry {
	r := &Registry{}
	r.Register(mods...)
	return r
}

// Register 根据类型断言分发到 API/Admin 列表
func (r *Registry) Register(mods ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mod := range mods {
		if m, ok := mod.(APIModule); ok {
			r.apiMods = append(r.apiMods, m)
		}
		if m, ok := mod.(AdminModule); ok {
			r.adminMods = append(r.adminMods, m)
		}
	}
}

// MountAllAPI 在 /api/v1 上挂载所有 API 模块
func (r *Registry) MountAllAPI(api ez.EZ) {
	if r == nil {
		return
	}
	r.mu.RLock()
	mods := append([]APIModule(nil), r.apiMods...)
	r.mu.RUnlock()

	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAPI(api)
	}
}

// MountAllAdmin 在 /admin/v1 上挂载所有 Admin 模块
func (r *Registry) MountAllAdmin(admin ez.EZ) {
	if r == nil {
		return
	}
	r.mu.RLock()
	mods := append([]AdminModule(nil), r.adminMods...)
	r.mu.RUnlock()

	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAdmin(admin)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
