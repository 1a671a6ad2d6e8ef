package app

import (
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"bookshelf/internal/mail"
	"bookshelf/pkg/authtoken"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/session"
	"bookshelf/pkg/store"
)

// recordingSender captures messages so tests can pull tokens out of the
// links that would have been mailed.
type recordingSender struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (s *recordingSender) Send(msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) mail.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatalf("no mail was sent")
	}
	return s.messages[len(s.messages)-1]
}

// tokenFromMail extracts the token query parameter from the first link
// in a message body.
func tokenFromMail(t *testing.T, msg mail.Message) string {
	t.Helper()
	_, rest, found := strings.Cut(msg.HTML, "token=")
	if !found {
		t.Fatalf("no token link in mail body:\n%s", msg.HTML)
	}
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		t.Fatalf("malformed link in mail body:\n%s", msg.HTML)
	}
	return rest[:end]
}

type testEnv struct {
	app    *App
	store  *store.MemoryStore
	redis  *miniredis.Miniredis
	mail   *recordingSender
	tokens *authtoken.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(mr.Addr(), "")
	st := store.NewMemoryStore()
	tokens := authtoken.NewManager("access-secret", "refresh-secret", 0, 0, c)
	sender := &recordingSender{}
	a := New(Options{
		Store:       st,
		Cache:       c,
		Sessions:    session.NewManager(c),
		Tokens:      tokens,
		Mail:        sender,
		FrontendURL: "http://app.test",
	})
	return &testEnv{app: a, store: st, redis: mr, mail: sender, tokens: tokens}
}

func (e *testEnv) register(t *testing.T, name, email string) AuthResult {
	t.Helper()
	res, err := e.app.Register(name, email, "Aa123456", "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}
