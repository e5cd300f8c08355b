// changefeed.go — записи append-only ленты изменений (Change Feed).
package model

import "time"

// FeedAction — тип действия в ленте изменений.
type FeedAction string

const (
	// ActionCreate — первая загрузка SOP Instance
	ActionCreate FeedAction = "create"
	// ActionUpdate — повторная загрузка существующего SOP Instance
	ActionUpdate FeedAction = "update"
	// ActionDelete — удаление SOP Instance
	ActionDelete FeedAction = "delete"
)

// FeedState — состояние записи ленты изменений.
// Единственная допустимая мутация записи: current → replaced.
type FeedState string

const (
	// StateCurrent — актуальная запись для данного SOP UID
	StateCurrent FeedState = "current"
	// StateReplaced — запись вытеснена более поздней для того же SOP UID
	StateReplaced FeedState = "replaced"
)

// ChangeFeedEntry — одна запись ленты изменений. Записи никогда не
// удаляются; для каждого SOP UID в любой момент не более одной записи
// в состоянии current.
type ChangeFeedEntry struct {
	// Sequence — монотонно возрастающий номер, назначается хранилищем.
	// Sequence == 0 — сентинел "лента пуста" (только для Latest).
	Sequence          int64      `json:"Sequence"`
	StudyInstanceUID  string     `json:"StudyInstanceUID"`
	SeriesInstanceUID string     `json:"SeriesInstanceUID"`
	SOPInstanceUID    string     `json:"SOPInstanceUID"`
	Action            FeedAction `json:"Action"`
	Timestamp         time.Time  `json:"Timestamp"`
	State             FeedState  `json:"State"`
	// Metadata — снимок tag-JSON метаданных на момент события
	Metadata map[string]any `json:"Metadata,omitempty"`
}
