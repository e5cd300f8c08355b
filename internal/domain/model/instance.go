// Пакет model — доменные модели DICOM Emulator.
// instance.go — запись о сохранённом SOP Instance и его поисковые атрибуты.
package model

import "time"

// InstanceRecord — одна строка реестра на сохранённый DICOM-объект.
// Идентичность: SOPInstanceUID (уникальный). Повторная загрузка того же
// UID заменяет строку и файл на месте.
type InstanceRecord struct {
	// SOPInstanceUID — глобально уникальный идентификатор объекта
	SOPInstanceUID string
	// StudyInstanceUID — идентификатор исследования
	StudyInstanceUID string
	// SeriesInstanceUID — идентификатор серии
	SeriesInstanceUID string
	// SOPClassUID — класс SOP-объекта
	SOPClassUID string
	// TransferSyntaxUID — синтаксис передачи исходного файла
	TransferSyntaxUID string
	// Searchable — извлечённые поисковые атрибуты (QIDO-RS)
	Searchable Searchable
	// MetadataJSON — канонический tag-JSON документ (сериализованный)
	MetadataJSON string
	// StoragePath — относительный путь файла в data dir
	StoragePath string
	// Size — размер файла в байтах
	Size int64
	// CreatedAt — время первой загрузки
	CreatedAt time.Time
	// UpdatedAt — время последней загрузки (равно CreatedAt для новых)
	UpdatedAt time.Time
}

// Searchable — фиксированный набор поисковых атрибутов QIDO-RS.
// Все поля nullable: nil означает, что тег отсутствовал в датасете.
// Отсутствие поискового атрибута — не причина отклонять загрузку
// (store-then-warn, не reject).
type Searchable struct {
	PatientID              *string
	PatientName            *string
	StudyDate              *string
	StudyTime              *string
	AccessionNumber        *string
	StudyDescription       *string
	Modality               *string
	SeriesDescription      *string
	SeriesNumber           *int64
	InstanceNumber         *int64
	ReferringPhysicianName *string
}
