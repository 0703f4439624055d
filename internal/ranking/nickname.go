package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNicknameLength = 12
	AnonymousNickname = "Anonymous"
)

var (
	ErrEmptyNickname   = errors.New("nickname is empty")
	ErrNicknameTooLong = fmt.Errorf("nickname is longer than %d characters", MaxNicknameLength)
)

// ValidateNickname trims s and checks it can be shown in the ranking.
func ValidateNickname(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyNickname
	}
	if utf8.RuneCountInString(s) > MaxNicknameLength {
		return "", ErrNicknameTooLong
	}
	return s, nil
}

// SaveNickname remembers the last nickname a player started a game with.
func (s *Store) SaveNickname(ctx context.Context, nickname string) error {
	if err := s.kv.Set(ctx, NicknameKey, nickname); err != nil {
		return fmt.Errorf("saving nickname: %w", err)
	}
	return nil
}

func (s *Store) LastNickname(ctx context.Context) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, NicknameKey)
	if err != nil {
		return "", false, fmt.Errorf("loading nickname: %w", err)
	}
	return v, ok && v != "", nil
}
