package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arturkryukov/dicomemu/internal/dicom"
	"github.com/arturkryukov/dicomemu/internal/events"
	"github.com/arturkryukov/dicomemu/internal/multipart"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

// testEnv — собранное окружение сервисного слоя поверх временной базы
// и временной директории данных.
type testEnv struct {
	db       *sql.DB
	store    *filestore.FileStore
	sink     *events.MemorySink
	ingest   *IngestService
	retrieve *RetrieveService
	search   *SearchService
	delete   *DeleteService
	feed     *ChangeFeedService
}

// newTestEnv создаёт окружение с in-memory приёмником событий.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("ошибка открытия базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	sink := events.NewMemorySink()
	manager := events.NewManager([]events.Sink{sink}, time.Second, logger)

	instances := repository.NewInstanceRepository(db)
	feedRepo := repository.NewChangeFeedRepository(db)
	cache := lru.NewLRU[string, json.RawMessage](64, nil, time.Minute)

	return &testEnv{
		db:       db,
		store:    store,
		sink:     sink,
		ingest:   NewIngestService(db, store, manager, 0, logger),
		retrieve: NewRetrieveService(instances, store, cache, logger),
		search:   NewSearchService(instances, logger),
		delete:   NewDeleteService(db, store, manager, logger),
		feed:     NewChangeFeedService(feedRepo, logger),
	}
}

// encodeInstance собирает бинарный DICOM-объект с заданными UID.
func encodeInstance(studyUID, seriesUID, sopUID string) []byte {
	return dicom.Encode(&dicom.Dataset{Elements: []dicom.Element{
		{Tag: dicom.TagSOPClassUID, VR: "UI", Strings: []string{"1.2.840.10008.5.1.4.1.1.2"}},
		{Tag: dicom.TagSOPInstanceUID, VR: "UI", Strings: []string{sopUID}},
		{Tag: dicom.TagModality, VR: "CS", Strings: []string{"CT"}},
		{Tag: dicom.TagPatientName, VR: "PN", Strings: []string{"Ivanov^Ivan"}},
		{Tag: dicom.TagPatientID, VR: "LO", Strings: []string{"PAT001"}},
		{Tag: dicom.TagStudyInstanceUID, VR: "UI", Strings: []string{studyUID}},
		{Tag: dicom.TagSeriesInstanceUID, VR: "UI", Strings: []string{seriesUID}},
	}})
}

// stowBody собирает multipart/related тело из бинарных частей.
// Возвращает тело и значение заголовка Content-Type.
func stowBody(parts ...[]byte) ([]byte, string) {
	mp := make([]multipart.Part, 0, len(parts))
	for _, p := range parts {
		mp = append(mp, multipart.Part{ContentType: multipart.MediaTypeDICOM, Data: p})
	}
	boundary := "stow-test-boundary"
	contentType := fmt.Sprintf(`multipart/related; type="application/dicom"; boundary=%s`, boundary)
	return multipart.Build(mp, boundary), contentType
}

// waitEvents дожидается публикации events в in-memory приёмник
// (публикация выполняется отдельной горутиной после коммита).
func (env *testEnv) waitEvents(t *testing.T, want int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evts := env.sink.Events()
		if len(evts) >= want {
			return evts
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("события не опубликованы: ожидалось %d, получено %d", want, len(env.sink.Events()))
	return nil
}
