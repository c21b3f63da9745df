// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"sync"

	"github.com/bureau-foundation/keybridge/lib/secret"
)

// Memory keeps values in protected process memory. Nothing survives a
// restart.
type Memory struct {
	mu     sync.Mutex
	values map[string]*secret.Buffer
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]*secret.Buffer)}
}

func (m *Memory) Put(name string, value *secret.Buffer) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	stored, err := copyBuffer(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if previous, ok := m.values[name]; ok {
		previous.Close()
	}
	m.values[name] = stored
	return nil
}

func (m *Memory) Get(name string) (*secret.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.values[name]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBuffer(stored)
}

func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.values[name]
	if !ok {
		return ErrNotFound
	}
	stored.Close()
	delete(m.values, name)
	return nil
}

// Snapshot returns copies of the stored names and raw values. Tests use
// it to assert that a failed operation left the store byte-identical.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string][]byte, len(m.values))
	for name, value := range m.values {
		snapshot[name] = append([]byte(nil), value.Bytes()...)
	}
	return snapshot
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, value := range m.values {
		value.Close()
		delete(m.values, name)
	}
	return nil
}

func copyBuffer(source *secret.Buffer) (*secret.Buffer, error) {
	buffer, err := secret.New(source.Len())
	if err != nil {
		return nil, err
	}
	copy(buffer.Bytes(), source.Bytes())
	return buffer, nil
}
