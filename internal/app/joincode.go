package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// JoinCodeAlphabet has 32 symbols; 0/O and 1/I are left out so codes survive being read aloud.
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const JoinCodeLength = 6

// JoinCodeGenerator produces candidate join codes. Uniqueness is checked by the store.
type JoinCodeGenerator interface {
	NewCode() (string, error)
}

// RandomJoinCodes draws codes from crypto/rand.
type RandomJoinCodes struct {
	reader io.Reader
}

func NewRandomJoinCodes() *RandomJoinCodes {
	return &RandomJoinCodes{reader: rand.Reader}
}

func (g *RandomJoinCodes) NewCode() (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := io.ReadFull(g.reader, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// 256 is a multiple of 32, so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = JoinCodeAlphabet[int(b)%len(JoinCodeAlphabet)]
	}
	return string(buf), nil
}

var errCodesExhausted = errors.New("join code sequence exhausted")

// SequenceJoinCodes hands out a fixed list of codes in order (useful for tests/demos).
type SequenceJoinCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func NewSequenceJoinCodes(codes ...string) *SequenceJoinCodes {
	return &SequenceJoinCodes{codes: codes}
}

func (s *SequenceJoinCodes) NewCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.codes) {
		return "", errCodesExhausted
	}
	code := s.codes[s.next]
	s.next++
	return code, nil
}

// NormalizeJoinCode upper-cases and trims user input.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the right length and alphabet.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, r) {
			return false
		}
	}
	return true
}
