// Command table-qr writes the join sticker of every table of a branch as a PNG.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	flag "github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-ordering/internal/config"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/session/db"
	"ms-ordering/internal/tables"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	cfg, _ := config.Load()

	branchID := flag.String("branch", "", "branch whose tables get a sticker (required)")
	outDir := flag.String("out", "./qr", "output directory")
	size := flag.Int("size", 512, "edge of each PNG in pixels")
	joinURL := flag.String("join-url", cfg.Session.TableJoinURL, "address the stickers point to")
	flag.Parse()

	if *branchID == "" {
		flag.Usage()
		os.Exit(2)
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := (&db.DB{Bun: bunDB}).ListTables(ctx, *branchID)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to list tables: %v", err))
	}
	if len(list) == 0 {
		log.Warn("QR", fmt.Sprintf("Branch %s has no tables", *branchID))
		return
	}

	codec, err := tables.NewCodec(cfg.Session.TableQRKey)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid table QR secret: %v", err))
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal("QR", fmt.Sprintf("Failed to create %s: %v", *outDir, err))
	}

	for _, t := range list {
		png, err := codec.QRCode(*joinURL, tables.Ref{TableID: t.ID, OrganizationID: t.OrganizationID, BranchID: t.BranchID}, *size)
		if err != nil {
			log.Fatal("QR", fmt.Sprintf("Failed to render table %s: %v", t.ID, err))
		}
		path := filepath.Join(*outDir, fmt.Sprintf("%s.png", t.ID))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			log.Fatal("QR", fmt.Sprintf("Failed to write %s: %v", path, err))
		}
		log.Info("QR", fmt.Sprintf("Table %s (%s) → %s", t.Label, t.ID, path))
	}
}
