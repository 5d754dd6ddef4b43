package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/database"
	"github.com/qs3c/deal_anal_server/internal/model"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, don't actually delete files")
	uploadExpire  = flag.Int("upload-expire", 24, "Hours to keep uploaded document files")
	reportExpire  = flag.Int("report-expire", 7, "Days to keep local report files already migrated to OSS")
	cleanUploads  = flag.Bool("clean-uploads", true, "Clean expired uploaded documents")
	cleanReports  = flag.Bool("clean-reports", true, "Clean local reports migrated to OSS")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	tempDir := cfg.Upload.TempDir
	totalSize := int64(0)
	deletedSize := int64(0)
	totalFiles := 0
	deletedFiles := 0

	// 1. 清理过期的上传文档
	if *cleanUploads {
		log.Printf("\n📦 Cleaning expired uploaded documents (older than %d hours)...", *uploadExpire)
		size, count := cleanExpiredDocuments(tempDir, *uploadExpire, *dryRun)
		deletedSize += size
		deletedFiles += count
	}

	// 2. 清理已迁移到 OSS 的本地报告
	if *cleanReports {
		log.Printf("\n📊 Cleaning local reports migrated to OSS...")
		size, count := cleanMigratedReports(db, tempDir, *reportExpire, *dryRun)
		deletedSize += size
		deletedFiles += count
	}

	// 3. 统计当前占用
	log.Println("\n📈 Scanning current disk usage...")
	filepath.Walk(tempDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			totalSize += info.Size()
			totalFiles++
		}
		return nil
	})

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Cleanup Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Total files: %d", totalFiles)
	log.Printf("Total size: %s", formatSize(totalSize))
	log.Printf("Deleted files: %d", deletedFiles)
	log.Printf("Freed space: %s", formatSize(deletedSize))
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - No files were actually deleted")
		log.Println("   Run with -dry-run=false to actually delete files")
	} else {
		log.Println("\n✅ Cleanup completed!")
	}
	log.Println(strings.Repeat("=", 60))
}

// cleanExpiredDocuments 清理过期的本地上传文档（<temp_dir>/documents/<user_id>/*）
func cleanExpiredDocuments(tempDir string, expireHours int, dryRun bool) (int64, int) {
	expireTime := time.Now().Add(-time.Duration(expireHours) * time.Hour)
	var totalSize int64
	var count int

	documentsDir := filepath.Join(tempDir, "documents")
	entries, err := os.ReadDir(documentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("No local documents directory, nothing to clean")
			return 0, 0
		}
		log.Printf("Failed to read documents dir: %v", err)
		return 0, 0
	}

	for _, userDir := range entries {
		if !userDir.IsDir() {
			continue
		}

		userPath := filepath.Join(documentsDir, userDir.Name())
		files, err := os.ReadDir(userPath)
		if err != nil {
			continue
		}

		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}

			if info.ModTime().Before(expireTime) {
				totalSize += info.Size()

				log.Printf("  - %s/%s (%.2f MB, %s old)",
					userDir.Name(), f.Name(),
					float64(info.Size())/1024/1024,
					time.Since(info.ModTime()).Round(time.Hour))

				if !dryRun {
					if err := os.Remove(filepath.Join(userPath, f.Name())); err != nil {
						log.Printf("    ❌ Failed to delete: %v", err)
						continue
					}
				}
				count++
			}
		}
	}

	log.Printf("Found %d expired documents (total: %s)", count, formatSize(totalSize))
	return totalSize, count
}

// cleanMigratedReports 清理已成功迁移到 OSS 的本地报告文件
func cleanMigratedReports(db *gorm.DB, tempDir string, keepDays int, dryRun bool) (int64, int) {
	reportsDir := filepath.Join(tempDir, "reports")
	var totalSize int64
	var count int

	// 查询报告已在 OSS 上的交易
	var deals []model.Deal
	err := db.Where("report_oss_url LIKE ?", "https://%").
		Find(&deals).Error
	if err != nil {
		log.Printf("Failed to query deals: %v", err)
		return 0, 0
	}

	log.Printf("Found %d deals with reports migrated to OSS", len(deals))

	// 为了安全，只删除超过N天的旧文件
	expireTime := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)

	for _, deal := range deals {
		localPath := filepath.Join(reportsDir, fmt.Sprintf("%d.json", deal.ID))

		info, err := os.Stat(localPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			log.Printf("  ⚠️  Failed to stat %d.json: %v", deal.ID, err)
			continue
		}

		if info.ModTime().Before(expireTime) {
			totalSize += info.Size()

			log.Printf("  - %d.json (%.2f KB, migrated to OSS, %s old)",
				deal.ID,
				float64(info.Size())/1024,
				time.Since(info.ModTime()).Round(time.Hour))

			if !dryRun {
				if err := os.Remove(localPath); err != nil {
					log.Printf("    ❌ Failed to delete: %v", err)
					continue
				}
			}
			count++
		}
	}

	log.Printf("Found %d report files to clean (total: %s)", count, formatSize(totalSize))
	return totalSize, count
}

// formatSize 格式化文件大小
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
