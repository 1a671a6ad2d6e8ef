package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bookshelf/pkg/domain"
)

func seedUser(t *testing.T, m *MemoryStore, id string) domain.User {
	t.Helper()
	user := domain.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.CreateUser(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestConsumeTokenSucceedsExactlyOnce(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u1")

	tok, err := m.IssueToken(user.ID, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(tok.Token) != 64 {
		t.Fatalf("expected 32-byte hex token, got %d chars", len(tok.Token))
	}

	got, err := m.ConsumeToken(tok.Token, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("consume returned wrong user: %q", got.ID)
	}
	if _, err := m.ConsumeToken(tok.Token, domain.TokenEmailVerification); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second consume must fail, got: %v", err)
	}
}

func TestConsumeTokenRejectsWrongKind(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u2")

	tok, err := m.IssueToken(user.ID, domain.TokenPasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ConsumeToken(tok.Token, domain.TokenEmailVerification); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("kind mismatch must fail, got: %v", err)
	}
	if _, err := m.ConsumeToken(tok.Token, domain.TokenPasswordReset); err != nil {
		t.Fatalf("matching kind should still work: %v", err)
	}
}

func TestIssueTokenInvalidatesPriorOfSameKind(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u3")

	first, err := m.IssueToken(user.ID, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := m.IssueToken(user.ID, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	if _, err := m.ConsumeToken(first.Token, domain.TokenEmailVerification); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("first token must be dead after reissue, got: %v", err)
	}
	if _, err := m.ConsumeToken(second.Token, domain.TokenEmailVerification); err != nil {
		t.Fatalf("second token must be live: %v", err)
	}
}

func TestIssueTokenKeepsOtherKindAlive(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u4")

	verify, err := m.IssueToken(user.ID, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue verification: %v", err)
	}
	if _, err := m.IssueToken(user.ID, domain.TokenPasswordReset); err != nil {
		t.Fatalf("issue reset: %v", err)
	}
	if _, err := m.ConsumeToken(verify.Token, domain.TokenEmailVerification); err != nil {
		t.Fatalf("verification token should survive a reset issue: %v", err)
	}
}

func TestConsumeExpiredTokenFails(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u5")

	tok, err := m.IssueToken(user.ID, domain.TokenPasswordReset)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.ExpireToken(tok.Token)
	if _, err := m.ConsumeToken(tok.Token, domain.TokenPasswordReset); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired token must fail, got: %v", err)
	}
}

func TestSweepExpiredTokensCountsPerKind(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u6")
	other := seedUser(t, m, "u7")

	dead1, _ := m.IssueToken(user.ID, domain.TokenEmailVerification)
	dead2, _ := m.IssueToken(other.ID, domain.TokenPasswordReset)
	live, _ := m.IssueToken(user.ID, domain.TokenPasswordReset)
	m.ExpireToken(dead1.Token)
	m.ExpireToken(dead2.Token)

	counts, err := m.SweepExpiredTokens()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if counts[domain.TokenEmailVerification] != 1 || counts[domain.TokenPasswordReset] != 1 {
		t.Fatalf("unexpected sweep counts: %v", counts)
	}
	if _, err := m.ConsumeToken(live.Token, domain.TokenPasswordReset); err != nil {
		t.Fatalf("live token must survive sweep: %v", err)
	}
}

func TestRevokeUserTokensBurnsUnused(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u8")
	other := seedUser(t, m, "u9")

	mine, _ := m.IssueToken(user.ID, domain.TokenPasswordReset)
	theirs, _ := m.IssueToken(other.ID, domain.TokenPasswordReset)

	revoked, err := m.RevokeUserTokens(user.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 revoked token, got %d", revoked)
	}
	if _, err := m.ConsumeToken(mine.Token, domain.TokenPasswordReset); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("revoked token must fail, got: %v", err)
	}
	if _, err := m.ConsumeToken(theirs.Token, domain.TokenPasswordReset); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	m := NewMemoryStore()
	user := seedUser(t, m, "u10")

	tok, err := m.IssueToken(user.ID, domain.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	start := make(chan struct{})
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := m.ConsumeToken(tok.Token, domain.TokenEmailVerification)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenInvalid):
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
}
