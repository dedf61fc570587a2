package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, SaltSize)
	assert.NotEqual(t, a, b)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	assert.Len(t, strings.Split(hash, "$"), 6)

	// Соль случайная: одинаковые пароли дают разные хеши
	again, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  error
	}{
		{name: "match", password: "correct-horse-battery", hash: hash},
		{name: "mismatch", password: "wrong-password-123", hash: hash, wantErr: ErrPasswordMismatch},
		{name: "empty password", password: "", hash: hash, wantErr: ErrPasswordMismatch},
		{name: "garbage", password: "x", hash: "not-a-hash", wantErr: ErrInvalidHash},
		{name: "other algorithm", password: "x", hash: "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", wantErr: ErrInvalidHash},
		{name: "bad params", password: "x", hash: "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", wantErr: ErrInvalidHash},
		{name: "bad salt", password: "x", hash: "$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA", wantErr: ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.password, tt.hash)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
