package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"slipcheck/internal/receipt/models"
	"slipcheck/pkg/testutil"
)

type MemoryStoreSuite struct {
	suite.Suite
	now   time.Time
	store *InMemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore(5*time.Minute, WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) verified(receiver string) models.VerifyResult {
	amount := decimal.RequireFromString("500.00")
	return models.VerifyResult{Success: true, Provider: "awash", Receiver: receiver, Amount: &amount}
}

func (s *MemoryStoreSuite) TestKey() {
	s.Equal("receipt:cbe:ft24123abc123:12345678", Key("CBE", " FT24123ABC123 ", "12345678"))
	s.Equal(Key("cbe", "ft1"), Key("CBE", "FT1", "", "  "))
	s.NotEqual(Key("cbe", "ft1", "1111"), Key("cbe", "ft1", "2222"))
}

func (s *MemoryStoreSuite) TestKeySeparatorInsidePartsCannotCollide() {
	s.NotEqual(Key("abyssinia", "FT1", "2345"), Key("abyssinia", "FT1:2345"))
	s.NotEqual(Key("cbe", "a:b", "c"), Key("cbe", "a", "b:c"))
	s.Equal("receipt:abyssinia:ft1%3A2345", Key("abyssinia", "FT1:2345"))

	s.Require().NoError(s.store.Set(s.ctx, Key("abyssinia", "FT1", "2345"), s.verified("A"), 0))
	s.Require().NoError(s.store.Set(s.ctx, Key("abyssinia", "FT1:2345"), s.verified("B"), 0))
	removed := 0
	for _, pattern := range ReferencePattern("abyssinia", "FT1") {
		n, err := s.store.DeletePattern(s.ctx, pattern)
		s.Require().NoError(err)
		removed += n
	}
	s.Equal(1, removed)
	s.Equal(1, s.store.Len())
}

func (s *MemoryStoreSuite) TestDeletePatternMatchesLikeRedis() {
	s.Require().NoError(s.store.Set(s.ctx, "receipt:cbe:ft1:a/b", s.verified("A"), 0))
	s.Require().NoError(s.store.Set(s.ctx, "receipt:cbe:ft1:x", s.verified("B"), 0))
	s.Require().NoError(s.store.Set(s.ctx, "receipt:cbe:ft2", s.verified("C"), 0))

	n, err := s.store.DeletePattern(s.ctx, "receipt:cbe:ft1:*")
	s.Require().NoError(err)
	s.Equal(2, n, "star spans slashes")
	s.Equal(1, s.store.Len())
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"a*", "a/b/c", true},
		{"a?c", "a/c", true},
		{"a?c", "ac", false},
		{"a[bc]d", "acd", true},
		{"a[^bc]d", "acd", false},
		{"a[0-9]", "a7", true},
		{"a[9-0]", "a7", true},
		{`a\*`, "a*", true},
		{`a\*`, "ab", false},
		{"*:ft1", "receipt:cbe:ft1", true},
		{"receipt:**", "receipt:", true},
		{"abc", "abcd", false},
	}
	for _, tc := range cases {
		if got := matchGlob(tc.pattern, tc.key); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
	for _, bad := range []string{"[", "a[b", `a\`} {
		if validatePattern(bad) == nil {
			t.Errorf("validatePattern(%q) accepted", bad)
		}
	}
}

func (s *MemoryStoreSuite) TestGetSet() {
	key := Key("awash", "REF1")

	_, err := s.store.Get(s.ctx, key)
	s.ErrorIs(err, ErrNotFound)

	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("Jane Roe"), 0))
	got, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal("Jane Roe", got.Receiver)

	ok, err := s.store.Has(s.ctx, key)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *MemoryStoreSuite) TestRejectsFailures() {
	key := Key("awash", "REF1")

	err := s.store.Set(s.ctx, key, models.Failure("awash", "timeout"), 0)
	s.ErrorIs(err, ErrNotCacheable)

	err = s.store.Set(s.ctx, key, models.VerifyResult{Success: true}, 0)
	s.ErrorIs(err, models.ErrIncompleteResult)

	s.Equal(0, s.store.Len())
}

func (s *MemoryStoreSuite) TestExpiry() {
	key := Key("awash", "REF1")
	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("Jane Roe"), 0))

	s.now = s.now.Add(4 * time.Minute)
	_, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)
	_, err = s.store.Get(s.ctx, key)
	s.ErrorIs(err, ErrNotFound)
	s.Equal(0, s.store.Len(), "expired entry is dropped on read")
}

func (s *MemoryStoreSuite) TestOverwriteRefreshesExpiry() {
	key := Key("awash", "REF1")
	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("First"), 0))

	s.now = s.now.Add(4 * time.Minute)
	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("Second"), 0))

	s.now = s.now.Add(4 * time.Minute)
	got, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal("Second", got.Receiver)
}

func (s *MemoryStoreSuite) TestExplicitTTL() {
	key := Key("awash", "REF1")
	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("Jane"), time.Second))

	s.now = s.now.Add(2 * time.Second)
	_, err := s.store.Get(s.ctx, key)
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestSweepRemovesOnlyExpired() {
	s.Require().NoError(s.store.Set(s.ctx, "short", s.verified("A"), time.Second))
	s.Require().NoError(s.store.Set(s.ctx, "long", s.verified("B"), time.Hour))

	s.now = s.now.Add(time.Minute)
	removed, err := s.store.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal(1, s.store.Len())
}

func (s *MemoryStoreSuite) TestDeleteAndDeletePattern() {
	s.Require().NoError(s.store.Set(s.ctx, Key("cbe", "FT1", "1111"), s.verified("A"), 0))
	s.Require().NoError(s.store.Set(s.ctx, Key("cbe", "FT1", "2222"), s.verified("B"), 0))
	s.Require().NoError(s.store.Set(s.ctx, Key("cbe", "FT12"), s.verified("C"), 0))
	s.Require().NoError(s.store.Set(s.ctx, Key("awash", "FT1"), s.verified("D"), 0))

	removed := 0
	for _, pattern := range ReferencePattern("cbe", "FT1") {
		n, err := s.store.DeletePattern(s.ctx, pattern)
		s.Require().NoError(err)
		removed += n
	}
	s.Equal(2, removed)
	s.Equal(2, s.store.Len(), "longer reference and other provider survive")

	s.Require().NoError(s.store.Delete(s.ctx, Key("awash", "FT1")))
	s.Require().NoError(s.store.Delete(s.ctx, "missing"))
	s.Equal(1, s.store.Len())

	_, err := s.store.DeletePattern(s.ctx, "[")
	s.Error(err)
}

func (s *MemoryStoreSuite) TestReturnedValuesAreCopies() {
	key := Key("awash", "REF1")
	s.Require().NoError(s.store.Set(s.ctx, key, s.verified("Jane"), 0))

	got, _ := s.store.Get(s.ctx, key)
	*got.Amount = decimal.NewFromInt(1)
	got.Receiver = "mutated"

	again, _ := s.store.Get(s.ctx, key)
	s.Equal("Jane", again.Receiver)
	s.True(again.Amount.Equal(decimal.RequireFromString("500")))
}

func (s *MemoryStoreSuite) TestConcurrentAccess() {
	result := testutil.RunConcurrent(50, func(n int) error {
		key := Key("awash", fmt.Sprintf("REF%d", n%5))
		if err := s.store.Set(s.ctx, key, s.verified("Jane"), 0); err != nil {
			return err
		}
		if _, err := s.store.Get(s.ctx, key); err != nil {
			return err
		}
		_, err := s.store.Sweep(s.ctx)
		return err
	})
	s.EqualValues(50, result.Successes)
	s.Equal(5, s.store.Len())
}
