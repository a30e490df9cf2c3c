package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"clockin-backend/internal/backup"
	"clockin-backend/internal/employee"
	"clockin-backend/internal/export"
	"clockin-backend/internal/ledger"
	"clockin-backend/internal/platform/blob"
	"clockin-backend/internal/platform/db"
	"clockin-backend/internal/platform/hashing"
	"clockin-backend/internal/security"
	"clockin-backend/internal/state"
)

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		log.Fatal("mode must be dev or release")
	}
	if cfg.Security.TokenSecret == "" {
		log.Fatal("security.token_secret is required")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	ctx := context.Background()

	store := blob.NewMySQLStore(conn)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal(err)
	}

	// 状態ドキュメント読み込み（空ならレガシーキーからの一回限りの移行）
	repo := state.NewRepo(store)
	if err := repo.Open(ctx); err != nil {
		log.Fatal(err)
	}

	ledgerSvc := ledger.NewService(repo, hashing.SHA256Digest{})
	empSvc := employee.NewService(repo, ledgerSvc)
	secSvc := security.NewService(repo, security.PBKDF2SHA256{}, []byte(cfg.Security.TokenSecret))
	exportSvc := export.NewService(repo, ledgerSvc)
	backupSvc := backup.NewService(repo)

	// 起動時にチェーンを一度検証して結果をログに残す
	if v, err := ledgerSvc.VerifyChain(ctx); err != nil {
		log.Printf("[WARN] chain verification failed to run: %v", err)
	} else if !v.OK {
		log.Printf("[WARN] ledger chain is broken (checked %d events)", v.Checked)
	} else {
		log.Printf("[INFO] ledger chain ok (%d events)", v.Checked)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1")
	// 破壊的操作・エクスポートはPINガード配下
	guarded := api.Group("", security.RequireGuard(secSvc))

	employee.RegisterRoutes(api, empSvc)
	ledger.RegisterRoutes(api, ledgerSvc)
	security.RegisterRoutes(api, guarded, secSvc, repo)
	export.RegisterRoutes(guarded, exportSvc)
	backup.RegisterRoutes(guarded, backupSvc)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		var err error
		if cfg.Server.Cert != "" && cfg.Server.Key != "" {
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(cfg.Server.Cert, cfg.Server.Key)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}
