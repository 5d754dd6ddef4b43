package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/pkg/oss"
	"github.com/qs3c/deal_anal_server/internal/repository"
)

const reuploadInterval = 5 * time.Minute

// Reuploader 后台把落在本地磁盘的分析报告补传到 OSS
type Reuploader struct {
	dealRepo  *repository.DealRepository
	ossClient *oss.Client
	cfg       *config.Config
}

func NewReuploader(
	dealRepo *repository.DealRepository,
	ossClient *oss.Client,
	cfg *config.Config,
) *Reuploader {
	return &Reuploader{
		dealRepo:  dealRepo,
		ossClient: ossClient,
		cfg:       cfg,
	}
}

// Start 启动后台重传循环。未配置 OSS 时直接退出，报告留在本地盘。
func (r *Reuploader) Start(ctx context.Context) {
	if r.ossClient == nil {
		log.Println("Reuploader disabled: OSS not configured")
		return
	}

	// 启动后先执行一次
	r.run()

	ticker := time.NewTicker(reuploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reuploader stopped")
			return
		case <-ticker.C:
			r.run()
		}
	}
}

func (r *Reuploader) run() {
	deals, err := r.dealRepo.ListLocalReports()
	if err != nil {
		log.Printf("Reuploader: failed to query local reports: %v", err)
		return
	}

	if len(deals) == 0 {
		return
	}

	log.Printf("Reuploader: found %d local reports to re-upload", len(deals))

	for _, d := range deals {
		localPath := filepath.Join(r.cfg.Upload.TempDir, "reports", fmt.Sprintf("%d.json", d.ID))
		data, err := os.ReadFile(localPath)
		if err != nil {
			log.Printf("Reuploader: failed to read local report %d: %v", d.ID, err)
			continue
		}

		ossURL, err := r.ossClient.UploadReportWithRetry(d.ID, data)
		if err != nil {
			log.Printf("Reuploader: failed to re-upload report %d: %v", d.ID, err)
			continue
		}

		if err := r.dealRepo.UpdateFields(d.ID, map[string]interface{}{
			"report_oss_url": ossURL,
		}); err != nil {
			log.Printf("Reuploader: failed to update DB for report %d: %v", d.ID, err)
			continue
		}

		os.Remove(localPath)
		log.Printf("Reuploader: successfully re-uploaded report %d to OSS", d.ID)
	}
}
