package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/findoc-analyzer/internal/records"
)

// SubmissionService は分析ジョブの受付を提供します。
type SubmissionService interface {
	Submit(ctx context.Context, data []byte, filename, query string) (*records.Record, error)
}

// StatusService は分析ジョブの状態照会を提供します。
type StatusService interface {
	Status(ctx context.Context, id string) (*records.Record, error)
	ListAll(ctx context.Context) ([]*records.Record, error)
}

// HandlerOptions はハンドラーの動作設定です。
type HandlerOptions struct {
	MaxUploadBytes int64
}

// AnalyzeHandler は POST /analyze のハンドラーを返します。
// multipart の file と任意の query を受け取り、ジョブIDを即時に返します。
func AnalyzeHandler(svc SubmissionService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data で分析するPDFファイルを送信してください。",
			})
			return
		}

		if opts.MaxUploadBytes > 0 && fileHeader.Size > opts.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": "ファイルサイズが上限を超えています。",
			})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたファイルを読み取れませんでした。",
			})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたファイルを読み取れませんでした。",
			})
			return
		}

		if !mimetype.Detect(data).Is("application/pdf") {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "PDF形式のファイルのみ受け付けます。",
			})
			return
		}

		record, err := svc.Submit(c.Request.Context(), data, fileHeader.Filename, c.PostForm("query"))
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":    "Document uploaded successfully. Analysis queued.",
			"task_id":    record.ID,
			"status_url": "/status/" + record.ID,
		})
	}
}

// StatusHandler は GET /status/:task_id のハンドラーを返します。
func StatusHandler(svc StatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := strings.TrimSpace(c.Param("task_id"))
		if taskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "task_id を指定してください。",
			})
			return
		}

		record, err := svc.Status(c.Request.Context(), taskID)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "TASK_NOT_FOUND",
					"message": "指定されたタスクは存在しません。",
				})
				return
			}
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"task_id":  record.ID,
			"filename": record.Filename,
			"status":   record.Status,
			"result":   record.Result,
		})
	}
}

// ListHandler は GET /analyses のハンドラーを返します。運用時の一覧確認用です。
func ListHandler(svc StatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListAll(c.Request.Context())
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"count":  len(list),
			"data":   list,
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case "INVALID_INPUT":
			status = http.StatusBadRequest
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "QUEUE_UNAVAILABLE":
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
