package main

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type MockBucketClient struct {
	UploadRequests []MockRequest
	mockList       map[string]ObjectInfo
	listErr        error
	uploadErr      error
}

type MockRequest struct {
	Bucket string
	Key    string
	Size   int64
}

func NewMockBucketClient(mocked map[string]ObjectInfo) *MockBucketClient {
	return &MockBucketClient{
		UploadRequests: make([]MockRequest, 0),
		mockList:       mocked,
	}
}

func (s *MockBucketClient) UploadFile(_ context.Context, bucketName string, key string, file *os.File) error {
	request := MockRequest{Bucket: bucketName, Key: key}
	if stat, err := file.Stat(); err == nil {
		request.Size = stat.Size()
	}
	s.UploadRequests = append(s.UploadRequests, request)
	return s.uploadErr
}

func (s *MockBucketClient) ListObjects(context.Context, string) (map[string]ObjectInfo, error) {
	return s.mockList, s.listErr
}

// MockObjectClient is a MemoryStore that records calls and fails the paths
// it is told to.
type MockObjectClient struct {
	*MemoryStore
	lock          sync.Mutex
	ReadRequests  map[string]int
	WriteRequests []string
	readErrs      map[string]error
	writeErrs     map[string]error
	listErrs      map[string]error
	delay         time.Duration
	inFlight      atomic.Int64
	maxInFlight   atomic.Int64
}

func NewMockObjectClient(objects map[string]string) *MockObjectClient {
	contents := make(map[string]ObjectContent, len(objects))
	for key, data := range objects {
		contents[key] = ObjectContent{Data: []byte(data), Language: defaultLanguage}
	}

	return &MockObjectClient{
		MemoryStore:   NewMemoryStore(contents),
		ReadRequests:  make(map[string]int),
		WriteRequests: make([]string, 0),
		readErrs:      make(map[string]error),
		writeErrs:     make(map[string]error),
		listErrs:      make(map[string]error),
	}
}

func (m *MockObjectClient) FailRead(objPath string, err error) *MockObjectClient {
	m.readErrs[objPath] = err
	return m
}

func (m *MockObjectClient) FailWrite(objPath string, err error) *MockObjectClient {
	m.writeErrs[objPath] = err
	return m
}

func (m *MockObjectClient) FailList(dirPath string, err error) *MockObjectClient {
	m.listErrs[dirPath] = err
	return m
}

// WithDelay makes every Read take at least d.
func (m *MockObjectClient) WithDelay(d time.Duration) *MockObjectClient {
	m.delay = d
	return m
}

// MaxInFlight is the highest number of Reads seen running at once.
func (m *MockObjectClient) MaxInFlight() int64 {
	return m.maxInFlight.Load()
}

func (m *MockObjectClient) Writes() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.WriteRequests...)
}

func (m *MockObjectClient) Reads(objPath string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.ReadRequests[objPath]
}

func (m *MockObjectClient) Content(objPath string) string {
	content, err := m.MemoryStore.Read(context.Background(), objPath)
	if err != nil {
		return ""
	}
	return string(content.Data)
}

func (m *MockObjectClient) List(ctx context.Context, dirPath string) ([]ObjectHandle, error) {
	if err, ok := m.listErrs[dirPath]; ok {
		return nil, err
	}
	return m.MemoryStore.List(ctx, dirPath)
}

func (m *MockObjectClient) Read(ctx context.Context, objPath string) (ObjectContent, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxInFlight.Load()
		if current <= seen || m.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.lock.Lock()
	m.ReadRequests[objPath]++
	m.lock.Unlock()

	if err, ok := m.readErrs[objPath]; ok {
		return ObjectContent{}, err
	}
	return m.MemoryStore.Read(ctx, objPath)
}

func (m *MockObjectClient) Write(ctx context.Context, objPath string, content ObjectContent) error {
	m.lock.Lock()
	m.WriteRequests = append(m.WriteRequests, objPath)
	m.lock.Unlock()

	if err, ok := m.writeErrs[objPath]; ok {
		return err
	}
	return m.MemoryStore.Write(ctx, objPath, content)
}
