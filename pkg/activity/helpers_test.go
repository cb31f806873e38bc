package activity_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
)

// mockInserter records every batch it receives.
type mockInserter struct {
	mu            sync.Mutex
	batches       [][]*activity.Event
	closed        bool
	InsertBatchFn func(ctx context.Context, events []*activity.Event) error
}

func (m *mockInserter) InsertBatch(ctx context.Context, events []*activity.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, events)
	if m.InsertBatchFn != nil {
		return m.InsertBatchFn(ctx, events)
	}
	return nil
}

func (m *mockInserter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockInserter) Batches() [][]*activity.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*activity.Event(nil), m.batches...)
}

func (m *mockInserter) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockInserter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// mockWriter buffers an object's content in memory.
type mockWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (m *mockWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

type mockObject struct {
	writer *mockWriter
}

func (m *mockObject) NewWriter(context.Context) io.WriteCloser {
	if m.writer == nil {
		m.writer = &mockWriter{}
	}
	return m.writer
}

type mockBucket struct {
	mu      sync.Mutex
	objects map[string]*mockObject
}

func (m *mockBucket) Object(name string) activity.GCSObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]*mockObject)
	}
	if _, ok := m.objects[name]; !ok {
		m.objects[name] = &mockObject{}
	}
	return m.objects[name]
}

type mockGCSClient struct {
	bucket *mockBucket
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockBucket{}}
}

func (m *mockGCSClient) Bucket(string) activity.GCSBucketHandle {
	return m.bucket
}
