package repositories

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/restream/reindexer/v4"
	// cproto (RPC) быстрее встроенного HTTP протокола.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

const (
	// Неймспейс с документами.
	documentsNamespace = "documents"

	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// HealthStatus хранит текущее состояние подключения к базе.
type HealthStatus struct {
	IsHealthy   bool
	LastCheck   time.Time
	LastError   error
	Connections int
}

// documentRecord: представление документа в Reindexer.
// Указатели на текст страниц храним как пару (значение, флаг), чтобы отличать "нет текста" от пустой строки.
type documentRecord struct {
	ID             string          `json:"id" reindex:"id,,pk"`
	SourceLanguage domain.Language `json:"source_language"`
	TargetLanguage domain.Language `json:"target_language"`
	CreatedAt      int64           `json:"created_at" reindex:"created_at"`
	Status         string          `json:"status" reindex:"status"`
	Pages          []pageRecord    `json:"pages"`
}

type pageRecord struct {
	ID                string `json:"id"`
	PageNumber        int    `json:"page_number"`
	Image             string `json:"image"`
	RecognizedText    string `json:"recognized_text"`
	HasRecognizedText bool   `json:"has_recognized_text"`
	TranslatedText    string `json:"translated_text"`
	HasTranslatedText bool   `json:"has_translated_text"`
}

func toRecord(doc domain.Document) *documentRecord {
	rec := &documentRecord{
		ID:             doc.ID.String(),
		SourceLanguage: doc.SourceLanguage,
		TargetLanguage: doc.TargetLanguage,
		CreatedAt:      doc.CreatedAt.UnixNano(),
		Status:         string(doc.Status),
		Pages:          make([]pageRecord, len(doc.Pages)),
	}
	for i, page := range doc.Pages {
		p := pageRecord{
			ID:         page.ID.String(),
			PageNumber: page.PageNumber,
			Image:      base64.StdEncoding.EncodeToString(page.ImageData),
		}
		if page.RecognizedText != nil {
			p.RecognizedText, p.HasRecognizedText = *page.RecognizedText, true
		}
		if page.TranslatedText != nil {
			p.TranslatedText, p.HasTranslatedText = *page.TranslatedText, true
		}
		rec.Pages[i] = p
	}
	return rec
}

func (rec *documentRecord) toDocument() (domain.Document, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("некорректный id документа %q: %w", rec.ID, err)
	}
	doc := domain.Document{
		ID:             id,
		SourceLanguage: rec.SourceLanguage,
		TargetLanguage: rec.TargetLanguage,
		CreatedAt:      time.Unix(0, rec.CreatedAt).UTC(),
		Status:         domain.ProcessingStatus(rec.Status),
		Pages:          make([]domain.DocumentPage, len(rec.Pages)),
	}
	for i, p := range rec.Pages {
		pageID, err := uuid.Parse(p.ID)
		if err != nil {
			return domain.Document{}, fmt.Errorf("некорректный id страницы %q: %w", p.ID, err)
		}
		image, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			return domain.Document{}, fmt.Errorf("страница %d: %w", p.PageNumber, err)
		}
		if len(image) == 0 {
			image = nil
		}
		page := domain.DocumentPage{ID: pageID, PageNumber: p.PageNumber, ImageData: image}
		if p.HasRecognizedText {
			page = page.WithRecognizedText(p.RecognizedText)
		}
		if p.HasTranslatedText {
			page = page.WithTranslatedText(p.TranslatedText)
		}
		doc.Pages[i] = page
	}
	return doc, nil
}

// ReindexerRepository хранит документы в Reindexer.
// Он умеет:
// 1. Управлять соединениями (пулинг).
// 2. Следить за здоровьем базы.
// 3. Сохранять, читать и удалять документы.
type ReindexerRepository struct {
	dsn      string
	poolSize int
	logger   *zap.Logger

	mu          sync.RWMutex
	db          *reindexer.Reindexer   // Главное соединение
	connections []*reindexer.Reindexer // Пул дополнительных соединений
	next        atomic.Uint64          // round-robin по пулу

	healthStatus atomic.Value // хранит *HealthStatus

	collectionsInitialized atomic.Bool
	collectionsMu          sync.Mutex
}

// NewReindexerRepository создает репозиторий и сразу подключается к базе.
func NewReindexerRepository(dsn string, maxConnections int, logger *zap.Logger) (*ReindexerRepository, error) {
	if maxConnections < 1 {
		maxConnections = 1
	}

	repo := &ReindexerRepository{
		dsn:         dsn,
		poolSize:    maxConnections,
		logger:      logger,
		connections: make([]*reindexer.Reindexer, 0, maxConnections),
	}
	repo.healthStatus.Store(&HealthStatus{LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе: %w", err)
	}

	return repo, nil
}

// Connect устанавливает соединение с несколькими попытками.
func (r *ReindexerRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connectWithRetry(ctx, defaultMaxRetries)
}

func (r *ReindexerRepository) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("повторная попытка подключения",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if err := r.ping(ctx, db); err != nil {
			lastErr = err
			db.Close()
			r.logger.Warn("тест соединения провален",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		r.closeAll()
		r.db = db

		for i := 0; i < r.poolSize; i++ {
			conn := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
			if err := r.ping(ctx, conn); err != nil {
				conn.Close()
				r.logger.Warn("не удалось создать соединение в пуле",
					zap.Int("индекс", i),
					zap.Error(err),
				)
				continue
			}
			r.connections = append(r.connections, conn)
		}

		// после переподключения неймспейсы нужно открыть заново
		r.collectionsInitialized.Store(false)
		r.updateHealthStatus(true, nil, len(r.connections)+1)

		r.logger.Info("успешно подключились к Reindexer",
			zap.Int("размер_пула", len(r.connections)),
		)
		return nil
	}

	r.updateHealthStatus(false, lastErr, 0)
	return fmt.Errorf("не удалось подключиться после %d попыток: %w", maxRetries, lastErr)
}

func (r *ReindexerRepository) ping(ctx context.Context, db *reindexer.Reindexer) error {
	if db == nil {
		return fmt.Errorf("объект соединения nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.WithContext(ctx).Ping()
}

// closeAll закрывает все соединения; вызывается под r.mu.
func (r *ReindexerRepository) closeAll() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	for _, conn := range r.connections {
		if conn != nil {
			conn.Close()
		}
	}
	r.connections = r.connections[:0]
}

// getConnection возвращает соединение из пула по round-robin.
func (r *ReindexerRepository) getConnection() *reindexer.Reindexer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.connections) == 0 {
		return r.db
	}
	n := r.next.Add(1)
	return r.connections[n%uint64(len(r.connections))]
}

func (r *ReindexerRepository) updateHealthStatus(isHealthy bool, err error, connections int) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy:   isHealthy,
		LastCheck:   time.Now(),
		LastError:   err,
		Connections: connections,
	})
}

// Health возвращает последнее известное состояние соединения.
func (r *ReindexerRepository) Health() HealthStatus {
	status, _ := r.healthStatus.Load().(*HealthStatus)
	if status == nil {
		return HealthStatus{}
	}
	return *status
}

func (r *ReindexerRepository) markUnhealthy(err error) {
	r.updateHealthStatus(false, err, r.Health().Connections)
}

// EnsureCollections открывает неймспейс документов на всех соединениях (double-checked locking).
func (r *ReindexerRepository) EnsureCollections(ctx context.Context) error {
	if r.collectionsInitialized.Load() {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()

	if r.collectionsInitialized.Load() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return domain.NewStorageError("ensure collections", fmt.Errorf("соединение с базой не установлено"))
	}

	opts := reindexer.DefaultNamespaceOptions()
	if err := r.db.OpenNamespace(documentsNamespace, opts, documentRecord{}); err != nil {
		return domain.NewStorageError("open namespace", err)
	}

	for i, conn := range r.connections {
		if err := conn.OpenNamespace(documentsNamespace, opts, documentRecord{}); err != nil {
			r.logger.Warn("ошибка открытия неймспейса для соединения из пула",
				zap.Int("индекс", i),
				zap.Error(err),
			)
		}
	}

	r.collectionsInitialized.Store(true)
	r.logger.Info("коллекции инициализированы", zap.String("namespace", documentsNamespace))
	return nil
}

// conn проверяет коллекции и выдает соединение, привязанное к контексту.
func (r *ReindexerRepository) conn(ctx context.Context, op string) (*reindexer.Reindexer, error) {
	if err := r.EnsureCollections(ctx); err != nil {
		return nil, err
	}
	db := r.getConnection()
	if db == nil {
		return nil, domain.NewStorageError(op, fmt.Errorf("нет доступного соединения с БД"))
	}
	return db.WithContext(ctx), nil
}

// Save сохраняет документ (upsert по id).
func (r *ReindexerRepository) Save(ctx context.Context, doc domain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx, "save")
	if err != nil {
		return err
	}

	if err := db.Upsert(documentsNamespace, toRecord(doc)); err != nil {
		r.logger.Error("ошибка сохранения документа",
			zap.String("id", doc.ID.String()),
			zap.Error(err),
		)
		r.markUnhealthy(err)
		return domain.NewStorageError("save", err)
	}
	return nil
}

// GetByID получает документ по его ID.
func (r *ReindexerRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx, "get")
	if err != nil {
		return domain.Document{}, err
	}

	iter := db.Query(documentsNamespace).Where("id", reindexer.EQ, id.String()).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.markUnhealthy(err)
		return domain.Document{}, domain.NewStorageError("get", err)
	}

	for iter.Next() {
		rec, ok := iter.Object().(*documentRecord)
		if !ok {
			return domain.Document{}, domain.NewStorageError("get", fmt.Errorf("неожиданный тип %T", iter.Object()))
		}
		doc, err := rec.toDocument()
		if err != nil {
			return domain.Document{}, domain.NewStorageError("decode", err)
		}
		return doc, nil
	}

	return domain.Document{}, fmt.Errorf("документ %s: %w", id, domain.ErrNotFound)
}

// FetchAll возвращает все документы, новые сверху.
func (r *ReindexerRepository) FetchAll(ctx context.Context) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db, err := r.conn(ctx, "fetch all")
	if err != nil {
		return nil, err
	}

	iter := db.Query(documentsNamespace).Sort("created_at", true).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.markUnhealthy(err)
		return nil, domain.NewStorageError("fetch all", err)
	}

	docs := make([]domain.Document, 0, iter.Count())
	for iter.Next() {
		rec, ok := iter.Object().(*documentRecord)
		if !ok {
			continue
		}
		doc, err := rec.toDocument()
		if err != nil {
			r.logger.Error("пропускаем повреждённый документ", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	// одинаковый created_at: порядок должен быть стабильным
	sortNewestFirst(docs)
	return docs, nil
}

// Delete удаляет документ по ID.
func (r *ReindexerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx, "delete")
	if err != nil {
		return err
	}

	if _, err := db.Query(documentsNamespace).Where("id", reindexer.EQ, id.String()).Delete(); err != nil {
		r.logger.Error("ошибка удаления документа",
			zap.String("id", id.String()),
			zap.Error(err),
		)
		r.markUnhealthy(err)
		return domain.NewStorageError("delete", err)
	}
	return nil
}

// ClearAll удаляет все документы.
func (r *ReindexerRepository) ClearAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx, "clear all")
	if err != nil {
		return err
	}

	if err := db.TruncateNamespace(documentsNamespace); err != nil {
		r.markUnhealthy(err)
		return domain.NewStorageError("clear all", err)
	}
	r.logger.Info("история документов очищена")
	return nil
}

// CheckConnection проверяет здоровье соединения (для внешних health check'ов).
func (r *ReindexerRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if err := r.ping(ctx, db); err != nil {
		r.markUnhealthy(err)
		return fmt.Errorf("проверка связи не прошла: %w", err)
	}

	r.updateHealthStatus(true, nil, r.Health().Connections)
	return nil
}

// Close закрывает все соединения с базой данных.
func (r *ReindexerRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeAll()
	r.updateHealthStatus(false, fmt.Errorf("соединение закрыто"), 0)
	return nil
}

var (
	_ domain.DocumentStore = (*ReindexerRepository)(nil)
	_ domain.HealthChecker = (*ReindexerRepository)(nil)
)
