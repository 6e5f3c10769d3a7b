package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status     int
	Body       []byte
	CreatedAt  time.Time
	Processing bool
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) when the key exists; (nil, false) when
	// the caller newly locked it.
	GetOrLock(key string) (*IdempotencyRecord, bool)
	Save(key string, status int, body []byte)
	Unlock(key string)
}

type InMemIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore() *InMemIdempotencyStore {
	return &InMemIdempotencyStore{records: make(map[string]*IdempotencyRecord)}
}

func (s *InMemIdempotencyStore) GetOrLock(key string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return rec, true
	}
	s.records[key] = &IdempotencyRecord{Processing: true, CreatedAt: time.Now()}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func (s *InMemIdempotencyStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware replays the stored response for a repeated
// X-Idempotency-Key from the same actor. Server errors unlock the key so the
// client may retry.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}

		actor := CurrentActor(c)
		fullKey := actor.ID + ":" + idemKey

		record, hit := store.GetOrLock(fullKey)
		if hit {
			if record.Processing {
				c.JSON(http.StatusConflict, gin.H{"error": "request in progress"})
				c.Abort()
				return
			}
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		if c.Writer.Status() < 500 {
			store.Save(fullKey, c.Writer.Status(), w.body)
		} else {
			store.Unlock(fullKey)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
