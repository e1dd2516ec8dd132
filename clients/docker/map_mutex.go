package docker

import "sync"

// MapMutex holds a read-write lock per key, used to pull every image only once
type MapMutex struct {
	innerMap map[string]*sync.RWMutex
	mutex    sync.Mutex
}

// NewMapMutex returns an empty MapMutex
func NewMapMutex() *MapMutex {
	return &MapMutex{
		innerMap: make(map[string]*sync.RWMutex),
	}
}

func (m *MapMutex) getKeyLock(key string) *sync.RWMutex {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if lock, ok := m.innerMap[key]; ok {
		return lock
	}

	lock := &sync.RWMutex{}
	m.innerMap[key] = lock

	return lock
}

// RLock takes the read lock for key
func (m *MapMutex) RLock(key string) {
	m.getKeyLock(key).RLock()
}

// RUnlock releases the read lock for key
func (m *MapMutex) RUnlock(key string) {
	m.getKeyLock(key).RUnlock()
}

// Lock takes the write lock for key
func (m *MapMutex) Lock(key string) {
	m.getKeyLock(key).Lock()
}

// Unlock releases the write lock for key
func (m *MapMutex) Unlock(key string) {
	m.getKeyLock(key).Unlock()
}
