package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

var (
	ErrStorage = errors.New("storage error")
	ErrDB      = errors.New("database error")
)

// fakeObjectStore is an in-memory ObjectStore. Listing returns keys in
// insertion order, standing in for a backend whose native order is unsorted.
type fakeObjectStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	order   []string

	EnsureBucketCalls int
	PutObjectCalls    int
	EnsureBucketErr   error
	PutObjectErr      error
	ListObjectsErr    error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnsureBucketCalls++
	if f.EnsureBucketErr != nil {
		return f.EnsureBucketErr
	}
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjectStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutObjectCalls++
	if f.PutObjectErr != nil {
		return f.PutObjectErr
	}
	if !f.buckets[bucket] {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	full := bucket + "/" + key
	if _, ok := f.objects[full]; !ok {
		f.order = append(f.order, full)
	}
	f.objects[full] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjectStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListObjectsErr != nil {
		return nil, f.ListObjectsErr
	}
	var keys []string
	for _, full := range f.order {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeObjectStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: no such key", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	return data, ok
}

func (f *fakeObjectStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeHandoff is an in-memory Handoff that remembers every value ever pushed.
type fakeHandoff struct {
	mu      sync.Mutex
	values  map[string]string
	pushed  []string
	cleared []string
}

func newFakeHandoff() *fakeHandoff {
	return &fakeHandoff{values: map[string]string{}}
}

func (f *fakeHandoff) key(runID string, stage entity.StageName) string {
	return runID + ":" + string(stage)
}

func (f *fakeHandoff) Push(ctx context.Context, runID string, stage entity.StageName, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[f.key(runID, stage)] = value
	f.pushed = append(f.pushed, string(stage))
	return nil
}

func (f *fakeHandoff) Pull(ctx context.Context, runID string, stage entity.StageName) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(runID, stage)
	v, ok := f.values[k]
	if !ok {
		return "", fmt.Errorf("no value for %s", k)
	}
	delete(f.values, k)
	return v, nil
}

func (f *fakeHandoff) Clear(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.values {
		if strings.HasPrefix(k, runID+":") {
			delete(f.values, k)
		}
	}
	f.cleared = append(f.cleared, runID)
	return nil
}

func (f *fakeHandoff) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

// fakeRunRepository records every state written for each run.
type fakeRunRepository struct {
	mu       sync.Mutex
	runs     map[string]entity.Run
	states   map[string][]entity.State
	CreateFn func(ctx context.Context, run *entity.Run) error
}

func newFakeRunRepository() *fakeRunRepository {
	return &fakeRunRepository{runs: map[string]entity.Run{}, states: map[string][]entity.State{}}
}

func (f *fakeRunRepository) Create(ctx context.Context, run *entity.Run) error {
	if f.CreateFn != nil {
		if err := f.CreateFn(ctx, run); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.states[run.ID] = append(f.states[run.ID], run.State)
	return nil
}

func (f *fakeRunRepository) UpdateState(ctx context.Context, id string, state entity.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[id]
	r.State = state
	f.runs[id] = r
	f.states[id] = append(f.states[id], state)
	return nil
}

func (f *fakeRunRepository) Finish(ctx context.Context, run *entity.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.states[run.ID] = append(f.states[run.ID], run.State)
	return nil
}

func (f *fakeRunRepository) FindByID(ctx context.Context, id string) (*entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return nil, ErrDB
	}
	return &r, nil
}

func (f *fakeRunRepository) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Run
	for _, r := range f.runs {
		if symbol == "" || r.Symbol == symbol {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRunRepository) history(id string) []entity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.State(nil), f.states[id]...)
}

// fakeNotifier captures notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []entity.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n entity.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) all() []entity.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.Notification(nil), f.sent...)
}

// directScheduler runs each stage once and records the order.
type directScheduler struct {
	mu     sync.Mutex
	stages []entity.StageName
}

func (s *directScheduler) Run(ctx context.Context, stage entity.StageName, fn StageFunc, policy RetryPolicy) (string, error) {
	s.mu.Lock()
	s.stages = append(s.stages, stage)
	s.mu.Unlock()
	return fn(ctx)
}

// mockGate is a Gate mock.
type mockGate struct {
	WaitFunc  func(ctx context.Context) (string, error)
	WaitCalls int
}

func (m *mockGate) Wait(ctx context.Context) (string, error) {
	m.WaitCalls++
	return m.WaitFunc(ctx)
}

// mockFetcher is a QuoteFetcher mock.
type mockFetcher struct {
	FetchQuotesFunc  func(ctx context.Context, baseURL, symbol string) (string, error)
	FetchQuotesCalls int
}

func (m *mockFetcher) FetchQuotes(ctx context.Context, baseURL, symbol string) (string, error) {
	m.FetchQuotesCalls++
	return m.FetchQuotesFunc(ctx, baseURL, symbol)
}

// mockReformatter stands in for the external job. ReformatFunc lets a test
// write the job's output into a fake object store.
type mockReformatter struct {
	ReformatFunc  func(ctx context.Context, locator string) error
	ReformatCalls int
}

func (m *mockReformatter) Reformat(ctx context.Context, locator string) error {
	m.ReformatCalls++
	return m.ReformatFunc(ctx, locator)
}

// mockLoader is a Loader mock.
type mockLoader struct {
	LoadFunc  func(ctx context.Context, req domain.LoadRequest) (int64, error)
	LoadCalls int
	Requests  []domain.LoadRequest
}

func (m *mockLoader) Load(ctx context.Context, req domain.LoadRequest) (int64, error) {
	m.LoadCalls++
	m.Requests = append(m.Requests, req)
	return m.LoadFunc(ctx, req)
}

// mockProbe replays a fixed sequence of probe outcomes; the last one repeats.
type mockProbe struct {
	mu      sync.Mutex
	results []probeOutcome
	calls   int
}

type probeOutcome struct {
	res ProbeResult
	err error
}

func (m *mockProbe) Probe(ctx context.Context) (ProbeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	m.calls++
	return m.results[i].res, m.results[i].err
}

func (m *mockProbe) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
