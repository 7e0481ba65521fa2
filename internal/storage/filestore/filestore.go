// Пакет filestore — операции с артефактами на диске.
// Хранилище разбито на поддиректории по классу артефакта
// (models, plots, eda_reports, tmp, backups). Ошибки файловой
// системы на уровне отдельного файла не прерывают пакетные
// операции очистки: они логируются и превращаются в пустой
// или ложный результат.
package filestore

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/naming"
)

// Store — управление физическими файлами артефактов.
type Store struct {
	// root — корневая директория хранилища (AML_STORAGE_DIR)
	root   string
	logger *slog.Logger
}

// SaveResult — результат сохранения артефакта на диск.
type SaveResult struct {
	// Filename — имя файла (ключ связи с документом метаданных)
	Filename string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт Store и все поддиректории хранилища.
func New(root string, logger *slog.Logger) (*Store, error) {
	subdirs := []string{
		config.ModelsSubdir, config.PlotsSubdir,
		config.EDAReportsSubdir, config.TmpSubdir, config.BackupsSubdir,
	}
	for _, d := range subdirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", d, err)
		}
	}

	return &Store{root: root, logger: logger}, nil
}

// Root возвращает корневую директорию хранилища.
func (s *Store) Root() string {
	return s.root
}

// Dir возвращает абсолютный путь поддиректории хранилища.
func (s *Store) Dir(subdir string) string {
	return filepath.Join(s.root, subdir)
}

// Path возвращает абсолютный путь файла в поддиректории.
func (s *Store) Path(subdir, filename string) string {
	return filepath.Join(s.root, subdir, filename)
}

// SaveFile записывает данные из reader в поддиректорию subdir под
// именем filename.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) SaveFile(reader io.Reader, subdir, filename string) (*SaveResult, error) {
	fullPath := s.Path(subdir, filename)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Filename: filename,
		FullPath: fullPath,
		Size:     size,
	}, nil
}

// Open открывает файл артефакта для чтения.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(subdir, filename string) (*os.File, error) {
	f, err := os.Open(s.Path(subdir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", filename)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", filename, err)
	}
	return f, nil
}

// Exists проверяет существование файла по абсолютному пути.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete удаляет файл по абсолютному пути. Возвращает true, если файл
// был действительно удалён. Отсутствие файла — штатный исход (false),
// прочие ошибки логируются и тоже дают false: одна проблемная запись
// не должна прерывать пакетную очистку.
func (s *Store) Delete(path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !os.IsNotExist(err) {
		s.logger.Error("Ошибка удаления файла",
			"path", path,
			"error", err)
	}
	return false
}

// FileSize возвращает размер файла или 0, если файл недоступен.
func (s *Store) FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// FindOlderThan возвращает абсолютные пути обычных файлов в директории,
// время модификации которых раньше now - maxAge. Несуществующая
// директория даёт пустой список.
func (s *Store) FindOlderThan(dir string, maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)
	var result []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Недоступная запись пропускается, обход продолжается
			s.logger.Warn("Ошибка обхода директории", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			result = append(result, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		s.logger.Error("Ошибка поиска старых файлов", "dir", dir, "error", err)
	}

	return result
}

// FindByOwner возвращает абсолютные пути файлов в директории,
// принадлежащих пользователю userID. Владелец определяется по первому
// токену имени файла, точное совпадение: пользователь u1 не захватит
// файлы пользователя u10.
func (s *Store) FindByOwner(dir, userID string) []string {
	var result []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("Ошибка обхода директории", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// .tmp — незавершённая запись, не артефакт
		if strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		if naming.ExtractUserID(d.Name()) == userID {
			result = append(result, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		s.logger.Error("Ошибка поиска файлов пользователя", "dir", dir, "error", err)
	}

	return result
}

// DirSize возвращает суммарный размер файлов в директории в байтах.
// Несуществующая директория даёт 0.
func (s *Store) DirSize(dir string) int64 {
	var total int64

	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})

	return total
}

// CountFiles возвращает количество обычных файлов в директории.
func (s *Store) CountFiles(dir string) int {
	count := 0

	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})

	return count
}

// CreateBackup копирует файл в директорию backups с временным
// суффиксом. Используется перед деструктивными операциями, которые
// не покрыты журналом очистки. Возвращает путь копии или пустую
// строку при ошибке.
func (s *Store) CreateBackup(path string) string {
	src, err := os.Open(path)
	if err != nil {
		s.logger.Error("Ошибка открытия файла для резервной копии", "path", path, "error", err)
		return ""
	}
	defer src.Close()

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	backupName := fmt.Sprintf("%s_backup_%s%s",
		name, time.Now().UTC().Format("20060102_150405"), ext)
	backupPath := filepath.Join(s.root, config.BackupsSubdir, backupName)

	dst, err := os.Create(backupPath)
	if err != nil {
		s.logger.Error("Ошибка создания резервной копии", "path", backupPath, "error", err)
		return ""
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		s.logger.Error("Ошибка копирования в резервную копию", "path", backupPath, "error", err)
		os.Remove(backupPath)
		return ""
	}

	return backupPath
}
