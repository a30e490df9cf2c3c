// 状態ドキュメント用のキー→blobストア。
// コアは「バイト列を読む・書く」以上を要求しない。破損はErrNotFound/呼び出し側の
// 正規化で吸収する。同時書き込みはラストライター勝ち（単一ライター前提）。
package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clockin-backend/internal/platform/db"
)

var ErrNotFound = errors.New("blob: key not found")

// Store は永続トランスポートの最小契約。
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ===== MySQL実装 =====

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

// EnsureSchema: 起動時にストア用テーブルを用意する
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	const q = `
	CREATE TABLE IF NOT EXISTS app_state (
		state_key  VARCHAR(64) NOT NULL PRIMARY KEY,
		doc        LONGBLOB    NOT NULL,
		updated_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("app_stateテーブルの作成に失敗: %w", err)
	}
	return nil
}

func (s *MySQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT doc FROM app_state WHERE state_key = ?`
	var doc []byte
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *MySQLStore) Save(ctx context.Context, key string, data []byte) error {
	const q = `
	INSERT INTO app_state (state_key, doc) VALUES (?, ?)
	ON DUPLICATE KEY UPDATE doc = VALUES(doc)`
	_, err := s.db.ExecContext(ctx, q, key, data)
	return err
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM app_state WHERE state_key = ?`
	_, err := s.db.ExecContext(ctx, q, key)
	return err
}

// MigrateKey: old のドキュメントを new へ移して old を消す（1トランザクション）。
// new が既に存在する、または old が無い場合は何もしない。
func (s *MySQLStore) MigrateKey(ctx context.Context, oldKey, newKey string, rewrite func([]byte) ([]byte, error)) (bool, error) {
	migrated := false
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM app_state WHERE state_key = ?`, newKey).Scan(&one)
		if err == nil {
			return nil // 既に現行キーがある
		}
		if err != sql.ErrNoRows {
			return err
		}

		var doc []byte
		err = tx.QueryRowContext(ctx, `SELECT doc FROM app_state WHERE state_key = ?`, oldKey).Scan(&doc)
		if err == sql.ErrNoRows {
			return nil // レガシーも無い
		}
		if err != nil {
			return err
		}

		if rewrite != nil {
			doc, err = rewrite(doc)
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO app_state (state_key, doc) VALUES (?, ?)`, newKey, doc); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM app_state WHERE state_key = ?`, oldKey); err != nil {
			return err
		}
		migrated = true
		return nil
	})
	return migrated, err
}
