// 台帳チェーン用ダイジェスト。
// 原則 SHA-256。暗号プリミティブが使えない環境向けに FNV-1a フォールバックを
// 用意するが、強度低下はKindで明示する（PINには絶対に使わない）。
package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

type Kind string

const (
	KindSHA256 Kind = "sha256"
	KindFNV1a  Kind = "fnv1a" // 非暗号。改ざん検知の「目印」程度
)

type Digest interface {
	Kind() Kind
	// Sum は入力の16進ダイジェスト（64桁）を返す
	Sum(payload string) string
	// Weak はフォールバック実装なら true
	Weak() bool
}

// ===== SHA-256 =====

type SHA256Digest struct{}

func (SHA256Digest) Kind() Kind { return KindSHA256 }
func (SHA256Digest) Weak() bool { return false }

func (SHA256Digest) Sum(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ===== FNV-1a フォールバック =====

type FNV1aDigest struct{}

func (FNV1aDigest) Kind() Kind { return KindFNV1a }
func (FNV1aDigest) Weak() bool { return true }

// 32bitのFNV-1aを64桁に左0詰めする（列幅をSHA-256と揃えるため）
func (FNV1aDigest) Sum(payload string) string {
	const (
		offset32 = 0x811c9dc5
		prime32  = 0x01000193
	)
	h := uint32(offset32)
	for i := 0; i < len(payload); i++ {
		h ^= uint32(payload[i])
		h *= prime32
	}
	const zeros = "00000000000000000000000000000000000000000000000000000000" // 56桁
	return zeros + hexUint32(h)
}

func hexUint32(v uint32) string {
	var b [4]byte
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	return hex.EncodeToString(b[:])
}

// Equal は一定時間比較
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
