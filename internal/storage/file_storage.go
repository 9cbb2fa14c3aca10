package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStorage отвечает за файловое хранилище вложений задач
// и статей базы знаний.
type FileStorage struct {
	rootPath       string
	maxUploadBytes int64
}

// NewFileStorage создаёт файловое хранилище.
func NewFileStorage(rootPath string, maxUploadMB int64) (*FileStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &FileStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// MaxUploadBytes возвращает лимит размера загружаемого файла.
func (s *FileStorage) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Save сохраняет файл и возвращает относительный путь и размер.
// Запись идёт во временный файл с последующим переименованием,
// чтобы прерванная загрузка не оставляла неполных файлов.
func (s *FileStorage) Save(ctx context.Context, ownerID uuid.UUID, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	safeName := sanitizeFilename(originalName)
	fileName := fmt.Sprintf("%d%s", time.Now().UnixNano(), filepath.Ext(safeName))

	ownerDir := filepath.Join(s.rootPath, ownerID.String())
	if err := os.MkdirAll(ownerDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог владельца: %w", err)
	}

	targetPath := filepath.Join(ownerDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	relative := filepath.Join(ownerID.String(), fileName)
	return relative, written, nil
}

// Open открывает сохранённый файл для чтения.
func (s *FileStorage) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.rootPath, relativePath))
	if err != nil {
		return nil, fmt.Errorf("storage: не удалось открыть файл: %w", err)
	}
	return f, nil
}

// Delete удаляет файл из хранилища.
func (s *FileStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, relativePath)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "attachment"
	}
	return name
}
