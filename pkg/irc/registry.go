package irc

import "sync"

// Registry 连接注册表，容量固定，同一服务器至多一个连接
// 建连前先预留槽位，失败时释放
//
// 非空的服务器名称在注册表内唯一，FindByName 因此总是确定的
type Registry struct {
	mu       sync.Mutex
	capacity int
	reserved map[string]struct{}
	byName   map[string]string // 名称 -> Server.ID
	byServer map[string]*Conn
	byHandle map[Handle]*Conn
}

// NewRegistry 创建注册表
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxConnections
	}
	return &Registry{
		capacity: capacity,
		reserved: make(map[string]struct{}),
		byName:   make(map[string]string),
		byServer: make(map[string]*Conn),
		byHandle: make(map[Handle]*Conn),
	}
}

// Reserve 为服务器预留槽位
func (r *Registry) Reserve(s *Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, ok := r.byServer[id]; ok {
		return ErrAlreadyConnected
	}
	if _, ok := r.reserved[id]; ok {
		return ErrAlreadyConnected
	}
	if r.nameTaken(s.Name, id) {
		return ErrNameInUse
	}
	if len(r.byServer)+len(r.reserved) >= r.capacity {
		return ErrRegistryFull
	}
	r.reserved[id] = struct{}{}
	r.claimName(s.Name, id)
	return nil
}

// Release 释放未提交的预留
func (r *Registry) Release(s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, ok := r.reserved[id]; !ok {
		return
	}
	delete(r.reserved, id)
	r.dropName(s.Name, id)
}

// Register 登记连接，已有预留时转为正式槽位
func (r *Registry) Register(conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.server.ID()
	if _, ok := r.byServer[id]; ok {
		return ErrAlreadyConnected
	}
	if r.nameTaken(conn.server.Name, id) {
		return ErrNameInUse
	}
	if _, ok := r.reserved[id]; ok {
		delete(r.reserved, id)
	} else if len(r.byServer)+len(r.reserved) >= r.capacity {
		return ErrRegistryFull
	}

	r.byServer[id] = conn
	r.byHandle[conn.handle] = conn
	r.claimName(conn.server.Name, id)
	return nil
}

// Unregister 移除连接，仅当登记的是同一个连接时生效
func (r *Registry) Unregister(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.server.ID()
	if cur, ok := r.byServer[id]; !ok || cur != conn {
		return false
	}
	delete(r.byServer, id)
	delete(r.byHandle, conn.handle)
	r.dropName(conn.server.Name, id)
	return true
}

func (r *Registry) nameTaken(name, id string) bool {
	if name == "" {
		return false
	}
	owner, ok := r.byName[name]
	return ok && owner != id
}

func (r *Registry) claimName(name, id string) {
	if name != "" {
		r.byName[name] = id
	}
}

func (r *Registry) dropName(name, id string) {
	if owner, ok := r.byName[name]; ok && owner == id {
		delete(r.byName, name)
	}
}

// FindByServer 按服务器查找
func (r *Registry) FindByServer(s *Server) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byServer[s.ID()]
}

// FindByHandle 按句柄查找
func (r *Registry) FindByHandle(h Handle) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byHandle[h]
}

// FindByName 按服务器名称查找
func (r *Registry) FindByName(name string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.byServer[id]
}

// Count 已登记的连接数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byServer)
}

// Capacity 容量
func (r *Registry) Capacity() int {
	return r.capacity
}

// Conns 当前连接快照
func (r *Registry) Conns() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*Conn, 0, len(r.byServer))
	for _, c := range r.byServer {
		conns = append(conns, c)
	}
	return conns
}
