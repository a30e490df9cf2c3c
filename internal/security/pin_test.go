package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"clockin-backend/internal/platform/blob"
	"clockin-backend/internal/state"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, kdf KDF) (*Service, *state.Repo) {
	t.Helper()
	repo := state.NewRepo(blob.NewMemStore())
	if err := repo.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewService(repo, kdf, []byte("test-secret")), repo
}

func TestSetPin_VerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	for _, pin := range []string{"1234", "0000", "contraseña larga"} {
		t.Run(pin, func(t *testing.T) {
			if err := svc.SetPin(ctx, pin, pin); err != nil {
				t.Fatal(err)
			}
			ok, err := svc.VerifyPin(pin)
			if err != nil || !ok {
				t.Errorf("VerifyPin(correct) = %v, %v", ok, err)
			}
			ok, err = svc.VerifyPin(pin + "x")
			if err != nil || ok {
				t.Errorf("VerifyPin(wrong) = %v, %v", ok, err)
			}
		})
	}
}

func TestSetPin_FreshSaltPerCall(t *testing.T) {
	svc, repo := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	record := func() state.PinRecord {
		var rec state.PinRecord
		repo.View(func(st *state.State) { rec = *st.Settings.Pin })
		return rec
	}

	if err := svc.SetPin(ctx, "1234", "1234"); err != nil {
		t.Fatal(err)
	}
	first := record()
	if err := svc.SetPin(ctx, "1234", "1234"); err != nil {
		t.Fatal(err)
	}
	second := record()

	if first.SaltB64 == second.SaltB64 || first.HashB64 == second.HashB64 {
		t.Error("same pin stored twice produced identical salt/hash")
	}
	if ok, err := svc.VerifyPin("1234"); err != nil || !ok {
		t.Errorf("VerifyPin after re-set = %v, %v", ok, err)
	}
}

func TestSetPin_Validation(t *testing.T) {
	svc, _ := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	cases := []struct {
		name         string
		pin, confirm string
	}{
		{"too short", "123", "123"},
		{"whitespace only", "    ", "    "},
		{"confirm mismatch", "1234", "1235"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.SetPin(ctx, tc.pin, tc.confirm)
			var de *DomainError
			if !errors.As(err, &de) || de.Code != ErrCodeInvalidArgument {
				t.Errorf("err = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestPin_NilKDFFailsClosed(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	err := svc.SetPin(ctx, "1234", "1234")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != ErrCodeUnavailable {
		t.Errorf("SetPin err = %v, want UNAVAILABLE", err)
	}

	// 設定が空でもKDF不在は検証より先に弾く。弱いハッシュでの代替はしない
	if _, err := svc.VerifyPin("1234"); err == nil {
		t.Error("VerifyPin without kdf succeeded")
	}
}

func TestClearPin(t *testing.T) {
	svc, _ := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	if err := svc.SetPin(ctx, "1234", "1234"); err != nil {
		t.Fatal(err)
	}
	if !svc.HasPin() {
		t.Fatal("HasPin = false after SetPin")
	}
	if err := svc.ClearPin(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.HasPin() {
		t.Error("HasPin = true after ClearPin")
	}
	if _, err := svc.VerifyPin("1234"); err == nil {
		t.Error("VerifyPin with no pin configured succeeded")
	}
}

func TestGraceToken_IssueAndCheck(t *testing.T) {
	svc, _ := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	if err := svc.SetPin(ctx, "1234", "1234"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.IssueGraceToken("9999"); err == nil {
		t.Error("wrong pin issued a token")
	}

	token, exp, err := svc.IssueGraceToken("1234")
	if err != nil {
		t.Fatal(err)
	}
	if got := time.Until(exp); got > GraceWindow || got < GraceWindow-time.Minute {
		t.Errorf("expiry %v from now, want ~%v", got, GraceWindow)
	}
	if !svc.CheckGraceToken(token) {
		t.Error("freshly issued token rejected")
	}
	if svc.CheckGraceToken(token + "x") {
		t.Error("mangled token accepted")
	}
	if svc.CheckGraceToken("") {
		t.Error("empty token accepted")
	}

	other := NewService(svc.repo, PBKDF2SHA256{}, []byte("different-secret"))
	if other.CheckGraceToken(token) {
		t.Error("token accepted under a different signing secret")
	}
}

func TestGraceToken_Expired(t *testing.T) {
	svc, _ := newTestService(t, PBKDF2SHA256{})
	ctx := context.Background()

	if err := svc.SetPin(ctx, "1234", "1234"); err != nil {
		t.Fatal(err)
	}

	// 発行時刻を過去に倒して、実時間の検証で期限切れにする
	svc.clock = &fakeClock{t: time.Now().Add(-time.Hour)}
	token, _, err := svc.IssueGraceToken("1234")
	if err != nil {
		t.Fatal(err)
	}
	if svc.CheckGraceToken(token) {
		t.Error("expired token accepted")
	}
}

func TestRequireGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(t, PBKDF2SHA256{})
	r := gin.New()
	r.GET("/guarded", RequireGuard(svc), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(auth string) int {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// PIN未設定: 全て素通し
	if got := do(""); got != http.StatusNoContent {
		t.Errorf("no pin, no header: status = %d", got)
	}

	if err := svc.SetPin(context.Background(), "1234", "1234"); err != nil {
		t.Fatal(err)
	}

	if got := do(""); got != http.StatusUnauthorized {
		t.Errorf("pin set, no header: status = %d", got)
	}
	if got := do("Basic abc"); got != http.StatusUnauthorized {
		t.Errorf("non-bearer scheme: status = %d", got)
	}
	if got := do("Bearer not.a.token"); got != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d", got)
	}

	token, _, err := svc.IssueGraceToken("1234")
	if err != nil {
		t.Fatal(err)
	}
	if got := do("Bearer " + token); got != http.StatusNoContent {
		t.Errorf("valid grace token: status = %d", got)
	}
}
