package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/storage"
)

// Типы файлов, разрешённые к загрузке. Проверяются по магическим
// байтам, а не по расширению или Content-Type клиента.
var allowedAttachmentMIMEs = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
	"application/zip": true,
}

// AttachmentHandler предоставляет HTTP слой для файлов, прикреплённых
// к задачам.
type AttachmentHandler struct {
	repo    *repository.AttachmentRepository
	storage *storage.FileStorage
}

func NewAttachmentHandler(repo *repository.AttachmentRepository, fs *storage.FileStorage) *AttachmentHandler {
	return &AttachmentHandler{repo: repo, storage: fs}
}

// Upload обрабатывает POST /tasks/:id/attachments (multipart, поле file).
func (h *AttachmentHandler) Upload(c *gin.Context) {
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ownerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "файл не передан")
		return
	}
	if fileHeader.Size > h.storage.MaxUploadBytes() {
		common.RespondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("файл превышает лимит %d байт", h.storage.MaxUploadBytes()))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "не удалось открыть файл")
		return
	}
	defer src.Close()

	// Магические байты первых 261 байт определяют реальный тип файла.
	head := make([]byte, 261)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		common.RespondError(c, http.StatusBadRequest, "не удалось прочитать файл")
		return
	}
	kind, _ := filetype.Match(head[:n])
	if !allowedAttachmentMIMEs[kind.MIME.Value] {
		common.RespondError(c, http.StatusBadRequest, "недопустимый тип файла")
		return
	}

	reader := io.MultiReader(bytes.NewReader(head[:n]), src)
	relPath, written, err := h.storage.Save(c.Request.Context(), ownerID, fileHeader.Filename, reader)
	if err != nil {
		_ = c.Error(err)
		return
	}

	attachment := &models.Attachment{
		OwnerID:   ownerID,
		TaskID:    &taskID,
		FileName:  fileHeader.Filename,
		FilePath:  relPath,
		MimeType:  kind.MIME.Value,
		SizeBytes: written,
	}
	if err := h.repo.Create(c.Request.Context(), attachment); err != nil {
		// Осиротевший файл убираем сразу, ошибка записи уже фатальна.
		if rmErr := h.storage.Delete(c.Request.Context(), relPath); rmErr != nil {
			logger.WithComponent("attachments").WithError(rmErr).Warn("не удалось удалить осиротевший файл")
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

// List обрабатывает GET /tasks/:id/attachments.
func (h *AttachmentHandler) List(c *gin.Context) {
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	attachments, err := h.repo.ListByTask(c.Request.Context(), taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attachments": attachments, "count": len(attachments)})
}

// Download обрабатывает GET /attachments/:id.
func (h *AttachmentHandler) Download(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	attachment, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	f, err := h.storage.Open(c.Request.Context(), attachment.FilePath)
	if err != nil {
		common.RespondNotFound(c, "файл не найден")
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	c.DataFromReader(http.StatusOK, attachment.SizeBytes, attachment.MimeType, f, nil)
}

// Delete обрабатывает DELETE /attachments/:id.
func (h *AttachmentHandler) Delete(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	attachment, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.storage.Delete(c.Request.Context(), attachment.FilePath); err != nil {
		logger.WithComponent("attachments").WithError(err).Warn("файл уже отсутствует на диске")
	}

	c.JSON(http.StatusOK, gin.H{"message": "вложение удалено"})
}
