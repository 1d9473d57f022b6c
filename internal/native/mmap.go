package native

import "sync"

// Mapping is a read-only view of an asset file.
type Mapping struct {
	data  []byte
	once  sync.Once
	unmap func([]byte) error
}

// Data returns the mapped bytes. The slice must not be used after Close.
func (m *Mapping) Data() []byte {
	if m == nil {
		return nil
	}
	return m.data
}

// Size is the length of the mapping in bytes.
func (m *Mapping) Size() int64 {
	if m == nil {
		return 0
	}
	return int64(len(m.data))
}

// Close releases the mapping. Safe to call more than once.
func (m *Mapping) Close() error {
	if m == nil {
		return nil
	}
	var err error
	m.once.Do(func() {
		if m.unmap != nil && m.data != nil {
			err = m.unmap(m.data)
		}
		m.data = nil
	})
	return err
}
