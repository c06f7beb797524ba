package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestMessageFallsBackToCode() {
	s.Equal("receipt cache offline", New(CodeUnavailable, "receipt cache offline").Error())
	s.Equal("not_found", (&Error{Code: CodeNotFound}).Error())
}

func (s *DomainErrorsSuite) TestWrapKeepsExistingCode() {
	inner := New(CodeNotFound, "unsupported provider")
	wrapped := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "invalidate failed")

	s.True(HasCode(wrapped, CodeNotFound))
	s.Equal("invalidate failed", wrapped.Error())
	s.ErrorIs(wrapped, inner)
}

func (s *DomainErrorsSuite) TestWrapAssignsCodeToPlainErrors() {
	root := errors.New("connection refused")
	err := Wrap(root, CodeInternal, "cache write failed")

	s.True(HasCode(err, CodeInternal))
	s.ErrorIs(err, root)
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.ErrorIs(New(CodeTimeout, "bank timed out"), &Error{Code: CodeTimeout})
	s.NotErrorIs(New(CodeTimeout, "bank timed out"), &Error{Code: CodeInternal})
	s.False(HasCode(errors.New("plain"), CodeInternal))
	s.False(HasCode(nil, CodeInternal))
}
