// PINアクセスガード。
// PINは保存しない。salt付きPBKDF2の導出値だけを設定に持つ。KDFが使えない
// 環境では set/verify とも fail-closed（台帳ハッシュのような弱い代替への
// 降格はしない）。検証成功後は短命トークンで猶予ウィンドウを与える。
package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"clockin-backend/internal/platform/hashing"
	"clockin-backend/internal/state"
)

const (
	MinPinLen     = 4
	PinIterations = 150000
	pinSaltLen    = 16
	pinKeyLen     = 32

	// 検証成功から再入力を求めない猶予。利便性とのトレードオフであって
	// バグではない（運用上、連続した保護操作のたびにPINを打たせない）。
	GraceWindow = 10 * time.Minute
)

// ===== エラー =====

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeInternal        = "INTERNAL"
)

func NewInvalidArgumentError(msg string) error {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: msg}
}

func NewUnauthorizedError(msg string) error {
	return &DomainError{Code: ErrCodeUnauthorized, Message: msg}
}

func NewUnavailableError(msg string) error {
	return &DomainError{Code: ErrCodeUnavailable, Message: msg}
}

// ===== KDF =====

// KDF: PIN導出の差し替え点。実装が無い（nil）環境ではPIN操作は拒否される。
type KDF interface {
	Derive(pin string, salt []byte, iterations, keyLen int) []byte
}

type PBKDF2SHA256 struct{}

func (PBKDF2SHA256) Derive(pin string, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(pin), salt, iterations, keyLen, sha256.New)
}

// ===== Service =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	repo   *state.Repo
	kdf    KDF
	secret []byte // グレーストークンの署名鍵
	clock  Clock
}

func NewService(repo *state.Repo, kdf KDF, tokenSecret []byte) *Service {
	return &Service{
		repo:   repo,
		kdf:    kdf,
		secret: tokenSecret,
		clock:  realClock{},
	}
}

func (s *Service) HasPin() bool {
	var has bool
	s.repo.View(func(st *state.State) {
		has = st.Settings.HasPin()
	})
	return has
}

// SetPin: salt毎回ランダム生成。同じPINでも保存されるレコードは毎回異なる。
func (s *Service) SetPin(ctx context.Context, pin, confirm string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) < MinPinLen {
		return NewInvalidArgumentError(fmt.Sprintf("pin must be at least %d characters", MinPinLen))
	}
	if pin != strings.TrimSpace(confirm) {
		return NewInvalidArgumentError("pin confirmation does not match")
	}
	if s.kdf == nil {
		return NewUnavailableError("key derivation unavailable, refusing to store a weak pin")
	}

	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return NewUnavailableError("secure random unavailable: " + err.Error())
	}
	key := s.kdf.Derive(pin, salt, PinIterations, pinKeyLen)

	return s.repo.Mutate(ctx, func(st *state.State) error {
		st.Settings.Pin = &state.PinRecord{
			SaltB64:    base64.StdEncoding.EncodeToString(salt),
			Iterations: PinIterations,
			HashB64:    base64.StdEncoding.EncodeToString(key),
		}
		return nil
	})
}

// VerifyPin: 保存済みsalt/iterationsで導出し直して一定時間比較。
func (s *Service) VerifyPin(pin string) (bool, error) {
	if s.kdf == nil {
		return false, NewUnavailableError("key derivation unavailable")
	}

	var rec *state.PinRecord
	s.repo.View(func(st *state.State) {
		if st.Settings.HasPin() {
			cp := *st.Settings.Pin
			rec = &cp
		}
	})
	if rec == nil {
		return false, NewInvalidArgumentError("no pin configured")
	}

	salt, err := base64.StdEncoding.DecodeString(rec.SaltB64)
	if err != nil {
		return false, NewUnavailableError("stored pin record corrupted")
	}
	key := s.kdf.Derive(strings.TrimSpace(pin), salt, rec.Iterations, pinKeyLen)
	got := base64.StdEncoding.EncodeToString(key)
	return hashing.Equal(got, rec.HashB64), nil
}

// ClearPin: それ自体が保護操作（ルート登録側でガードを噛ませる）
func (s *Service) ClearPin(ctx context.Context) error {
	return s.repo.Mutate(ctx, func(st *state.State) error {
		st.Settings.Pin = nil
		return nil
	})
}

// ===== グレーストークン =====

// IssueGraceToken: PIN検証に成功した呼び出し元へ、GraceWindowの間だけ
// 保護操作を再認証なしで通すトークンを発行する。
func (s *Service) IssueGraceToken(pin string) (string, time.Time, error) {
	ok, err := s.VerifyPin(pin)
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, NewUnauthorizedError("pin incorrect")
	}

	exp := s.clock.Now().Add(GraceWindow)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "guard",
		"iat":   s.clock.Now().Unix(),
		"exp":   exp.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// CheckGraceToken: 署名・期限・scope を検証する
func (s *Service) CheckGraceToken(tokenStr string) bool {
	if tokenStr == "" {
		return false
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	scope, _ := claims["scope"].(string)
	return scope == "guard"
}
