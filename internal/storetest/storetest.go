// Package storetest provides an in-memory objectstore.Client for tests,
// with call counting and failure injection.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/jmgilman/go/modelcache/internal/objectstore"
)

// Store is an in-memory object store. All methods are safe for concurrent
// use. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	objects  map[string][]byte
	sessions map[string]*session // keyed by upload ID
	nextID   int

	// Calls counts invocations per method name.
	Calls map[string]int

	// FailUploadPart makes uploads of the given part number fail every
	// time when > 0.
	FailUploadPart int

	// FailPut makes simple Put calls fail when set.
	FailPut bool

	// FailDelete makes Delete calls fail when set.
	FailDelete bool

	// Aborted records upload IDs that were aborted.
	Aborted []string
}

type session struct {
	key   string
	parts map[int][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		objects:  make(map[string][]byte),
		sessions: make(map[string]*session),
		Calls:    make(map[string]int),
	}
}

// Seed places an object directly into the store.
func (s *Store) Seed(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// Object returns a stored object's bytes and whether it exists.
func (s *Store) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// OpenSessions returns the number of multipart sessions that were neither
// completed nor aborted.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) count(method string) {
	s.Calls[method]++
}

// Head implements objectstore.Client.
func (s *Store) Head(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Head")
	data, ok := s.objects[key]
	if !ok {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

// List implements objectstore.Client.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("List")
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements objectstore.Client.
func (s *Store) Get(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Get")
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	if offset > int64(len(data)) {
		return nil, fmt.Errorf("offset %d beyond object size %d", offset, len(data))
	}
	end := int64(len(data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

// Put implements objectstore.Client.
func (s *Store) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Put")
	if s.FailPut {
		return fmt.Errorf("injected put failure")
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}
	s.objects[key] = data
	return nil
}

// Delete implements objectstore.Client.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Delete")
	if s.FailDelete {
		return fmt.Errorf("injected delete failure")
	}
	delete(s.objects, key)
	return nil
}

// InitiateMultipart implements objectstore.Client.
func (s *Store) InitiateMultipart(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("InitiateMultipart")
	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.sessions[id] = &session{key: key, parts: make(map[int][]byte)}
	return id, nil
}

// UploadPart implements objectstore.Client.
func (s *Store) UploadPart(_ context.Context, key, uploadID string, number int, r io.Reader, size int64) (objectstore.Part, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return objectstore.Part{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UploadPart")
	if s.FailUploadPart == number {
		return objectstore.Part{}, fmt.Errorf("injected failure on part %d", number)
	}
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return objectstore.Part{}, fmt.Errorf("unknown upload session %s", uploadID)
	}
	if int64(len(data)) != size {
		return objectstore.Part{}, fmt.Errorf("part size mismatch: declared %d, read %d", size, len(data))
	}
	sess.parts[number] = data
	return objectstore.Part{Number: number, ETag: fmt.Sprintf("etag-%s-%d", uploadID, number)}, nil
}

// CompleteMultipart implements objectstore.Client. It enforces the part
// contract: contiguous indices from 1, strictly ordered, matching etags.
func (s *Store) CompleteMultipart(_ context.Context, key, uploadID string, parts []objectstore.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("CompleteMultipart")
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return fmt.Errorf("unknown upload session %s", uploadID)
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if p.Number != i+1 {
			return fmt.Errorf("parts out of order: index %d has part number %d", i, p.Number)
		}
		want := fmt.Sprintf("etag-%s-%d", uploadID, p.Number)
		if p.ETag != want {
			return fmt.Errorf("etag mismatch for part %d", p.Number)
		}
		data, ok := sess.parts[p.Number]
		if !ok {
			return fmt.Errorf("part %d was never uploaded", p.Number)
		}
		buf.Write(data)
	}
	if len(parts) != len(sess.parts) {
		return fmt.Errorf("completed %d parts but %d were uploaded", len(parts), len(sess.parts))
	}
	s.objects[key] = buf.Bytes()
	delete(s.sessions, uploadID)
	return nil
}

// AbortMultipart implements objectstore.Client.
func (s *Store) AbortMultipart(_ context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("AbortMultipart")
	sess, ok := s.sessions[uploadID]
	if ok && sess.key == key {
		delete(s.sessions, uploadID)
		s.Aborted = append(s.Aborted, uploadID)
	}
	return nil
}

// Compile-time interface check.
var _ objectstore.Client = (*Store)(nil)
