package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
)

// fakeProvider is an in-memory CacheProvider with failure injection.
type fakeProvider struct {
	mu      sync.Mutex
	scalars map[string][]byte
	docs    map[string][]byte
	hashes  map[string]map[string]string
	ttls    map[string]int
	deletes []string

	// failNext fails the next n calls with err.
	failNext int
	failErr  error
	calls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		scalars: map[string][]byte{},
		docs:    map[string][]byte{},
		hashes:  map[string]map[string]string{},
		ttls:    map[string]int{},
	}
}

func (f *fakeProvider) fail() error {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return f.failErr
	}
	return nil
}

func (f *fakeProvider) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	v, ok := f.scalars[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeProvider) Set(_ context.Context, key string, value []byte, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.scalars[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeProvider) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := f.scalars[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeProvider) GetDocument(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	v, ok := f.docs[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeProvider) SetDocument(_ context.Context, key string, value []byte, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.docs[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeProvider) GetDocuments(_ context.Context, keys []string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := f.docs[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeProvider) GetHash(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	v, ok := f.hashes[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeProvider) SetHash(_ context.Context, key string, fields map[string]string, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.hashes[key] = fields
	f.ttls[key] = ttl
	return nil
}

func (f *fakeProvider) GetHashes(_ context.Context, keys []string) (map[string]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := map[string]map[string]string{}
	for _, k := range keys {
		if v, ok := f.hashes[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeProvider) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.deletes = append(f.deletes, key)
	delete(f.scalars, key)
	delete(f.docs, key)
	delete(f.hashes, key)
	return nil
}

func (f *fakeProvider) DeletePattern(_ context.Context, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return 0, err
	}
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for _, m := range []map[string][]byte{f.scalars, f.docs} {
		for k := range m {
			if strings.HasPrefix(k, prefix) {
				delete(m, k)
				n++
			}
		}
	}
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			delete(f.hashes, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeProvider) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return false, err
	}
	_, a := f.scalars[key]
	_, b := f.docs[key]
	_, c := f.hashes[key]
	return a || b || c, nil
}

func (f *fakeProvider) TTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.ttls[key]
	if !ok {
		return 0, providers.ErrCacheMiss
	}
	return time.Duration(ttl) * time.Second, nil
}

func (f *fakeProvider) Pipelined(ctx context.Context, fn func(providers.WriteBatch) error) error {
	f.mu.Lock()
	if err := f.fail(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	b := &fakeBatch{}
	if err := fn(b); err != nil {
		return err
	}
	for _, op := range b.ops {
		if err := op(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProvider) Ping(context.Context) error { return nil }

type fakeBatch struct {
	ops []func(context.Context, *fakeProvider) error
}

func (b *fakeBatch) Set(key string, value []byte, ttl int) {
	b.ops = append(b.ops, func(ctx context.Context, f *fakeProvider) error { return f.Set(ctx, key, value, ttl) })
}

func (b *fakeBatch) SetDocument(key string, value []byte, ttl int) {
	b.ops = append(b.ops, func(ctx context.Context, f *fakeProvider) error { return f.SetDocument(ctx, key, value, ttl) })
}

func (b *fakeBatch) SetHash(key string, fields map[string]string, ttl int) {
	b.ops = append(b.ops, func(ctx context.Context, f *fakeProvider) error { return f.SetHash(ctx, key, fields, ttl) })
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
