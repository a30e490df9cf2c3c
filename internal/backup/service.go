// バックアップ（全文スナップショット）・復元・全消去。いずれも保護操作。
package backup

import (
	"context"
	"fmt"

	"clockin-backend/internal/state"
)

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeInternal        = "INTERNAL"
)

type Service struct {
	repo *state.Repo
}

func NewService(repo *state.Repo) *Service {
	return &Service{repo: repo}
}

// Snapshot: 現在の状態ドキュメント全文（スキーマ版数込み）
func (s *Service) Snapshot() ([]byte, error) {
	return s.repo.Snapshot()
}

// Restore はインポートされたドキュメントを信用しない。正規化（壊れたレコードの
// 破棄・欠損スロットの補完）に通った結果だけを現行状態として差し替える。
func (s *Service) Restore(ctx context.Context, doc []byte) (employees, events int, err error) {
	st, err := state.Normalize(doc)
	if err != nil {
		return 0, 0, &DomainError{Code: ErrCodeInvalidArgument, Message: "document is not valid json: " + err.Error()}
	}
	if err := s.repo.Replace(ctx, st); err != nil {
		return 0, 0, err
	}
	return len(st.Employees), len(st.Events), nil
}

// Wipe: 従業員・イベント・設定（PIN含む）を初期状態へ戻す
func (s *Service) Wipe(ctx context.Context) error {
	return s.repo.Replace(ctx, state.Default())
}
