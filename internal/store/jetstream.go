package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	logx "gozo/pkg/logx"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// jetstreamStore persists schedules in a NATS JetStream KV bucket.
//
// It is the sole writer to the bucket; Put/Delete wrap transient JetStream
// errors in a short bounded retry so a blip in the cluster doesn't
// immediately surface as a StoreError to the admission path.
type jetstreamStore struct {
	log logx.Logger
	kv  jetstream.KeyValue

	retryMax  int
	retryBase time.Duration
}

// OpenJetStream creates or binds the configured KV bucket and returns a
// Store backed by it.
func OpenJetStream(ctx context.Context, nc *nats.Conn, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "gozo"
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("store: jetstream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("store: open bucket %q: %w", bucket, err)
	}

	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 100 * time.Millisecond
	}

	return &jetstreamStore{log: log, kv: kv, retryMax: retryMax, retryBase: retryBase}, nil
}

func (s *jetstreamStore) backoffFor(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryBase
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retryMax)), ctx)
}

func (s *jetstreamStore) Put(ctx context.Context, id string, rec Record) error {
	key := encodeKey(id)
	val, err := jsonc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}

	op := func() error {
		_, err := s.kv.Put(ctx, key, val)
		return err
	}
	if err := backoff.Retry(op, s.backoffFor(ctx)); err != nil {
		return fmt.Errorf("store: put %q: %w", id, err)
	}
	return nil
}

func (s *jetstreamStore) Delete(ctx context.Context, id string) error {
	key := encodeKey(id)
	op := func() error {
		err := s.kv.Delete(ctx, key)
		if err != nil && errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if err := backoff.Retry(op, s.backoffFor(ctx)); err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}

func (s *jetstreamStore) Iterate(ctx context.Context) ([]Entry, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list keys: %w", err)
	}

	var entries []Entry
	for key := range lister.Keys() {
		e, err := s.kv.Get(ctx, key)
		if err != nil {
			s.log.Warn("store: recovery read failed, skipping key", logx.String("key", key), logx.Err(err))
			continue
		}
		var rec Record
		if err := jsonc.Unmarshal(e.Value(), &rec); err != nil {
			s.log.Warn("store: recovery decode failed, skipping key", logx.String("key", key), logx.Err(err))
			continue
		}
		entries = append(entries, Entry{ID: decodeKey(key), Record: rec})
	}
	return entries, nil
}

func (s *jetstreamStore) Close() error { return nil }

// encodeKey/decodeKey guard against schedule ids containing characters the
// KV key grammar disallows (NATS subject tokens forbid '.', ' ', etc.).
// Client-supplied ids pass through verbatim in the common case; anything
// outside the safe set is percent-escaped.
func encodeKey(id string) string {
	if isSafeKey(id) {
		return id
	}
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		if isSafeByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func decodeKey(key string) string {
	if !strings.Contains(key, "%") {
		return key
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] == '%' && i+2 < len(key) {
			var v int
			if _, err := fmt.Sscanf(key[i+1:i+3], "%02X", &v); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func isSafeKey(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isSafeByte(id[i]) {
			return false
		}
	}
	return true
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
