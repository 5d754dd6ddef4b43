package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/deal_anal_server/internal/api/middleware"
	"github.com/qs3c/deal_anal_server/internal/pkg/response"
	"github.com/qs3c/deal_anal_server/internal/service"
)

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

// UploadDocument 上传交易文档
// POST /api/v1/upload/document  (multipart/form-data, 字段名 file)
func (h *UploadHandler) UploadDocument(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "请选择要上传的文件")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	defer f.Close()

	resp, err := h.uploadService.SaveDocument(
		userID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		f,
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge), errors.Is(err, service.ErrInvalidFormat):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}
