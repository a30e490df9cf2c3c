package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"clockin-backend/internal/platform/blob"
)

// Repo は状態ドキュメントの唯一の持ち主。
// プロセス内の変更は mu で直列化する。プロセス跨ぎ（複数インスタンスが同じ
// ストアを共有する構成）は想定外で、ラストライター勝ちになる。競合解決は
// 仕様上持たない。
type Repo struct {
	store blob.Store

	mu sync.Mutex
	st *State
}

// KeyMigrator: ストアがトランザクショナルなキー移行を提供する場合の追加IF
type KeyMigrator interface {
	MigrateKey(ctx context.Context, oldKey, newKey string, rewrite func([]byte) ([]byte, error)) (bool, error)
}

func NewRepo(store blob.Store) *Repo {
	return &Repo{store: store}
}

// Open: 現行キーを読む。空ならレガシーキーからの一回限りの移行を試み、
// それも無ければ初期状態から始める。壊れたドキュメントは初期状態に落とす。
func (r *Repo) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rewrite := func(doc []byte) ([]byte, error) {
		st, err := Normalize(doc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(st)
	}

	if m, ok := r.store.(KeyMigrator); ok {
		migrated, err := m.MigrateKey(ctx, LegacyKey, StorageKey, rewrite)
		if err != nil {
			return fmt.Errorf("レガシー移行に失敗: %w", err)
		}
		if migrated {
			log.Printf("[INFO] migrated legacy state %s -> %s", LegacyKey, StorageKey)
		}
	}

	doc, err := r.store.Load(ctx, StorageKey)
	if errors.Is(err, blob.ErrNotFound) {
		// MigrateKey非対応ストア向けのフォールバック移行
		if legacy, lerr := r.store.Load(ctx, LegacyKey); lerr == nil {
			st, nerr := Normalize(legacy)
			if nerr == nil {
				r.st = st
				if serr := r.saveLocked(ctx); serr != nil {
					return serr
				}
				_ = r.store.Delete(ctx, LegacyKey)
				log.Printf("[INFO] migrated legacy state %s -> %s", LegacyKey, StorageKey)
				return nil
			}
		}
		r.st = Default()
		return nil
	}
	if err != nil {
		return err
	}

	st, err := Normalize(doc)
	if err != nil {
		// ドキュメント破損。台帳を壊したまま動くより空で立ち上げる
		log.Printf("[WARN] state document corrupted, starting fresh: %v", err)
		r.st = Default()
		return nil
	}
	r.st = st
	return nil
}

// View: 読み取り専用アクセス。fn内で状態を書き換えないこと。
func (r *Repo) View(fn func(st *State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.st)
}

// Mutate: fn が nil を返したら即座に全文保存する（バッチなし）。
// 保存失敗はそのまま返すが、メモリ上の変更は巻き戻さない。呼び出し側は
// 「リロードで消えるかもしれない」と利用者へ警告する義務を負う。
func (r *Repo) Mutate(ctx context.Context, fn func(st *State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.st); err != nil {
		return err
	}
	return r.saveLocked(ctx)
}

func (r *Repo) saveLocked(ctx context.Context) error {
	doc, err := json.Marshal(r.st)
	if err != nil {
		return fmt.Errorf("状態のシリアライズに失敗: %w", err)
	}
	if err := r.store.Save(ctx, StorageKey, doc); err != nil {
		return fmt.Errorf("状態の保存に失敗: %w", err)
	}
	return nil
}

// Snapshot: バックアップ用に現在の全文JSONを返す
func (r *Repo) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r.st, "", "  ")
}

// Replace: 復元・全消去用。正規化済みの状態へ丸ごと差し替えて保存する。
func (r *Repo) Replace(ctx context.Context, st *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st = st
	return r.saveLocked(ctx)
}
