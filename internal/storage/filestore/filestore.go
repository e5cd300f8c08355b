// Пакет filestore — операции с физическими DICOM-файлами на диске.
// Файлы адресуются по содержимому идентификаторов:
// {studyUID}/{seriesUID}/{sopUID}.dcm внутри data dir.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (DE_DATA_DIR)
	dataDir string
}

// New создаёт новый FileStore. Проверяет и создаёт директорию,
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// InstancePath возвращает относительный путь файла экземпляра.
// UID-ы должны быть провалидированы (dicom.ValidateUID) до вызова —
// это защита от path traversal.
func InstancePath(studyUID, seriesUID, sopUID string) string {
	return filepath.Join(studyUID, seriesUID, sopUID+".dcm")
}

// Save записывает байты экземпляра по content-addressed пути,
// создавая директории по необходимости.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется. Повторная запись того же SOP UID
// атомарно заменяет прежний файл.
func (fs *FileStore) Save(storagePath string, data []byte) error {
	fullPath := filepath.Join(fs.dataDir, storagePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("создание директории для %s: %w", storagePath, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("запись данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("атомарное переименование: %w", err)
	}
	return nil
}

// Promote атомарно переименовывает подготовленный файл в конечный путь.
// Используется при замене экземпляра по тому же пути: новая версия
// пишется рядом и публикуется только после коммита транзакции.
func (fs *FileStore) Promote(stagedPath, finalPath string) error {
	if err := os.Rename(
		filepath.Join(fs.dataDir, stagedPath),
		filepath.Join(fs.dataDir, finalPath),
	); err != nil {
		return fmt.Errorf("публикация файла %s: %w", finalPath, err)
	}
	return nil
}

// Read возвращает содержимое файла экземпляра.
func (fs *FileStore) Read(storagePath string) ([]byte, error) {
	fullPath := filepath.Join(fs.dataDir, storagePath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storagePath)
		}
		return nil, fmt.Errorf("чтение файла %s: %w", storagePath, err)
	}
	return data, nil
}

// Delete удаляет файл с диска и подчищает опустевшие директории
// серии и исследования. Возвращает nil, если файл уже не существует.
func (fs *FileStore) Delete(storagePath string) error {
	fullPath := filepath.Join(fs.dataDir, storagePath)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление файла %s: %w", storagePath, err)
	}

	// Remove на непустой директории вернёт ошибку — её игнорируем
	seriesDir := filepath.Dir(fullPath)
	if seriesDir != fs.dataDir {
		_ = os.Remove(seriesDir)
		studyDir := filepath.Dir(seriesDir)
		if studyDir != fs.dataDir {
			_ = os.Remove(studyDir)
		}
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(storagePath string) bool {
	_, err := os.Stat(filepath.Join(fs.dataDir, storagePath))
	return err == nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}
