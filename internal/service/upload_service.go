package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/pkg/oss"
)

var (
	ErrFileTooLarge  = errors.New("文件过大")
	ErrInvalidFormat = errors.New("不支持的文档格式")
)

// UploadService 交易文档上传。OSS 配置缺失时退回本地磁盘存储，
// document_key 用 local:// 前缀区分
type UploadService struct {
	ossClient *oss.Client
	cfg       *config.Config
}

func NewUploadService(ossClient *oss.Client, cfg *config.Config) *UploadService {
	return &UploadService{ossClient: ossClient, cfg: cfg}
}

// SaveDocument 校验并保存上传的交易文档，返回 document_key
func (s *UploadService) SaveDocument(userID int64, filename, contentType string, size int64, r io.Reader) (*dto.UploadDocumentResponse, error) {
	if size > s.cfg.Upload.MaxSize {
		return nil, ErrFileTooLarge
	}
	if !s.allowedExtension(filename) {
		return nil, ErrInvalidFormat
	}

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.Upload.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.cfg.Upload.MaxSize {
		return nil, ErrFileTooLarge
	}

	var key string
	if s.ossClient != nil {
		key, err = s.ossClient.UploadDocument(userID, filename, data, contentType)
		if err != nil {
			return nil, err
		}
	} else {
		key, err = s.saveLocal(userID, filename, data)
		if err != nil {
			return nil, err
		}
		log.Printf("Upload: document saved locally for user %d (OSS not configured)", userID)
	}

	return &dto.UploadDocumentResponse{
		DocumentKey:  key,
		DocumentName: filepath.Base(filename),
		Size:         int64(len(data)),
	}, nil
}

func (s *UploadService) saveLocal(userID int64, filename string, data []byte) (string, error) {
	id, err := generateUploadID()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.cfg.Upload.TempDir, "documents", fmt.Sprintf("%d", userID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := id + strings.ToLower(filepath.Ext(filename))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", err
	}

	return fmt.Sprintf("local://documents/%d/%s", userID, name), nil
}

// CleanupExpired 清理过期的本地文档，由定时任务调用
func (s *UploadService) CleanupExpired() error {
	root := filepath.Join(s.cfg.Upload.TempDir, "documents")
	cutoff := time.Now().Add(-time.Duration(s.cfg.Upload.ExpireHours) * time.Hour)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Upload cleanup: failed to remove %s: %v", path, err)
		}
		return nil
	})
}

func (s *UploadService) allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.cfg.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func generateUploadID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
