// Package handoff はステージ間の値受け渡しチャネルを提供します。
// 値は (run ID, ステージ名) をキーに保持され、次のステージが取り出した時点で削除されます。
package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

// ErrValueMissing is returned by Pull when no value was published for the stage,
// or it was already consumed.
var ErrValueMissing = errors.New("handoff value missing")

type memKey struct {
	runID string
	stage entity.StageName
}

// Memory is a process-local handoff channel.
type Memory struct {
	mu     sync.Mutex
	values map[memKey]string
}

var _ usecase.Handoff = (*Memory)(nil)

// NewMemory creates an empty Memory channel.
func NewMemory() *Memory {
	return &Memory{values: map[memKey]string{}}
}

func (m *Memory) Push(ctx context.Context, runID string, stage entity.StageName, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memKey{runID, stage}] = value
	return nil
}

func (m *Memory) Pull(ctx context.Context, runID string, stage entity.StageName) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{runID, stage}
	v, ok := m.values[k]
	if !ok {
		return "", fmt.Errorf("%w: run %s stage %s", ErrValueMissing, runID, stage)
	}
	delete(m.values, k)
	return v, nil
}

func (m *Memory) Clear(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.values {
		if k.runID == runID {
			delete(m.values, k)
		}
	}
	return nil
}

// Len returns the number of unconsumed values.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
