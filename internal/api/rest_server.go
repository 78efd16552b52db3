package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/game"
	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/middleware"
	"github.com/annel0/blockroll/internal/observability"
	"github.com/annel0/blockroll/internal/replay"
	"github.com/annel0/blockroll/internal/storage"
	"github.com/annel0/blockroll/internal/world"
)

// Version - версия сервера в /api/server
const Version = "v0.1.0"

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	http    *http.Server
	manager *game.Manager
	port    string
	metrics *ServerMetrics
	log     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // порт для запуска сервера
	Manager  *game.Manager        // реестр игровых сессий
	Registry prometheus.Registerer // nil - дефолтный регистр
	Logger   *logging.Logger      // nil - логгер API
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8080"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	// otelgin первым, чтобы логгер видел trace-id
	router.Use(otelgin.Middleware("blockroll_api"))

	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())

	promMw := middleware.NewPrometheusMiddleware("blockroll_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router: router,
		http: &http.Server{
			Addr:              config.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		manager: config.Manager,
		port:    config.Port,
		metrics: NewServerMetrics(),
		log:     config.Logger,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler { return rs.router }

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Группа API
	api := rs.router.Group("/api")
	api.GET("/server", rs.handleServerInfo)

	levels := api.Group("/levels")
	{
		levels.GET("", rs.handleListLevels)
		levels.POST("", rs.handleSaveLevel)
		levels.POST("/generate", rs.handleGenerateLevel)
		levels.GET("/:id", rs.handleGetLevel)
		levels.DELETE("/:id", rs.handleDeleteLevel)
		levels.GET("/:id/solution", rs.handleSolveLevel)
	}

	sessions := api.Group("/sessions")
	{
		sessions.GET("", rs.handleListSessions)
		sessions.POST("", rs.handleCreateSession)
		sessions.GET("/:id", rs.handleGetSession)
		sessions.DELETE("/:id", rs.handleDeleteSession)
		sessions.POST("/:id/moves", rs.handleMove)
		sessions.POST("/:id/pause", rs.handlePause)
		sessions.POST("/:id/resume", rs.handleResume)
		sessions.POST("/:id/reset", rs.handleReset)
		sessions.GET("/:id/replay", rs.handleSessionReplay)
	}

	replays := api.Group("/replays")
	{
		replays.GET("", rs.handleListReplays)
		replays.GET("/:id", rs.handleGetReplay)
		replays.POST("/:id/verify", rs.handleVerifyReplay)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CreateSessionRequest - запрос на запуск уровня
type CreateSessionRequest struct {
	LevelID string `json:"level_id" binding:"required"`
}

// MoveRequest - запрос хода. Direction: up/down/left/right или WASD.
type MoveRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// MoveResponse - принятый ход
type MoveResponse struct {
	Direction string        `json:"direction"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Session   game.Snapshot `json:"session"`
}

// GenerateRequest - параметры генератора уровней
type GenerateRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Seed      int64   `json:"seed"`
	Threshold float64 `json:"threshold"`
	MinMoves  int     `json:"min_moves"`
	Save      bool    `json:"save"`
}

// LevelResponse - уровень с текстовой раскладкой
type LevelResponse struct {
	*level.Level
	Layout string      `json:"layout"`
	Origin level.Point `json:"origin"`
}

// SolutionResponse - кратчайшее решение уровня
type SolutionResponse struct {
	LevelID    string             `json:"level_id"`
	Moves      int                `json:"moves"`
	Directions []entity.Direction `json:"directions"`
}

// VerifyResponse - результат проигрывания записи
type VerifyResponse struct {
	ReplayID  string `json:"replay_id"`
	Pose      string `json:"pose"`
	Moves     int    `json:"moves"`
	Completed bool   `json:"completed"`
}

// statusFor сопоставляет ошибку домена HTTP-статусу
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidDirection):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrMoveBlocked),
		errors.Is(err, entity.ErrTransitionInProgress),
		errors.Is(err, game.ErrSessionPaused),
		errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrInputQueueFull),
		errors.Is(err, replay.ErrDiverged):
		return http.StatusConflict
	case errors.Is(err, level.ErrNoFloor),
		errors.Is(err, level.ErrMissingID),
		errors.Is(err, level.ErrMissingStart),
		errors.Is(err, level.ErrMissingEnd),
		errors.Is(err, level.ErrStartNotOnFloor),
		errors.Is(err, level.ErrEndNotOnFloor),
		errors.Is(err, level.ErrBadLayout),
		errors.Is(err, level.ErrGenerationFailed),
		errors.Is(err, world.ErrEmptyFloor),
		errors.Is(err, world.ErrBadCoordinate),
		errors.Is(err, world.ErrGridTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (rs *RestServer) fail(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rs.log.Error("%s: %v", message, err)
	}
	c.JSON(status, GenericResponse{
		Success: false,
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	// Получаем реальные метрики
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	info := map[string]interface{}{
		"version":         Version,
		"name":            "Blockroll Server",
		"status":          "running",
		"uptime":          rs.metrics.GetUptime(),
		"memory_mb":       fmt.Sprintf("%.1f", memoryMB),
		"cpu_percent":     fmt.Sprintf("%.1f", cpuPercent),
		"active_sessions": rs.manager.Count(),
		"memory":          rs.metrics.GetDetailedMemoryStats(),
	}

	ok(c, http.StatusOK, "Информация о сервере", info)
}

// === Уровни ===

func (rs *RestServer) handleListLevels(c *gin.Context) {
	levels, err := rs.manager.Levels().List(c.Request.Context())
	if err != nil {
		rs.fail(c, "Ошибка получения уровней", err)
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Уровней: %d", len(levels)), levels)
}

func (rs *RestServer) handleGetLevel(c *gin.Context) {
	lvl, err := rs.manager.Levels().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		rs.fail(c, "Уровень не найден", err)
		return
	}
	layout, origin := lvl.Layout()
	ok(c, http.StatusOK, "Уровень", LevelResponse{Level: lvl, Layout: layout, Origin: origin})
}

// handleSaveLevel принимает YAML или JSON документ уровня
func (rs *RestServer) handleSaveLevel(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Не удалось прочитать тело запроса"})
		return
	}
	// JSON - подмножество YAML, отдельный разбор не нужен
	lvl, err := level.Parse(body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest // синтаксис YAML
		}
		c.JSON(status, GenericResponse{Success: false, Message: fmt.Sprintf("Неверный уровень: %v", err)})
		return
	}
	if err := rs.manager.Levels().Save(c.Request.Context(), lvl); err != nil {
		rs.fail(c, "Ошибка сохранения уровня", err)
		return
	}
	rs.log.Info("уровень %s сохранен", lvl.ID)
	ok(c, http.StatusCreated, "Уровень сохранен", lvl)
}

func (rs *RestServer) handleDeleteLevel(c *gin.Context) {
	if err := rs.manager.Levels().Delete(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, "Ошибка удаления уровня", err)
		return
	}
	ok(c, http.StatusOK, "Уровень удален", nil)
}

func (rs *RestServer) handleSolveLevel(c *gin.Context) {
	ctx, span := observability.StartSpan(c.Request.Context(), "level.solve", "",
		attribute.String("blockroll.level_id", c.Param("id")))
	defer span.End()

	lvl, err := rs.manager.Levels().Get(ctx, c.Param("id"))
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Уровень не найден", err)
		return
	}
	path, err := lvl.Solve()
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Уровень не решается", err)
		return
	}
	span.SetAttributes(attribute.Int("blockroll.moves", len(path)))
	ok(c, http.StatusOK, "Решение", SolutionResponse{LevelID: lvl.ID, Moves: len(path), Directions: path})
}

func (rs *RestServer) handleGenerateLevel(c *gin.Context) {
	var req GenerateRequest
	// пустое тело - параметры по умолчанию
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
			return
		}
	}

	if req.Width > level.MaxGeneratedSize || req.Height > level.MaxGeneratedSize {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Размер поля больше %d клеток", level.MaxGeneratedSize),
		})
		return
	}

	opts := level.DefaultGeneratorOptions()
	if req.ID != "" {
		opts.ID = req.ID
	}
	if req.Name != "" {
		opts.Name = req.Name
	}
	if req.Width > 0 {
		opts.Width = req.Width
	}
	if req.Height > 0 {
		opts.Height = req.Height
	}
	if req.Threshold > 0 {
		opts.Threshold = req.Threshold
	}
	if req.MinMoves > 0 {
		opts.MinMoves = req.MinMoves
	}
	if req.Seed != 0 {
		opts.Seed = req.Seed
	} else {
		opts.Seed = time.Now().UnixNano()
	}

	lvl, path, err := level.Generate(opts)
	if err != nil {
		rs.fail(c, "Генерация не удалась", err)
		return
	}
	if req.Save {
		if err := rs.manager.Levels().Save(c.Request.Context(), lvl); err != nil {
			rs.fail(c, "Ошибка сохранения уровня", err)
			return
		}
	}

	layout, origin := lvl.Layout()
	ok(c, http.StatusCreated, fmt.Sprintf("Уровень сгенерирован, решение за %d ходов", len(path)),
		LevelResponse{Level: lvl, Layout: layout, Origin: origin})
}

// === Сессии ===

func (rs *RestServer) handleListSessions(c *gin.Context) {
	list := rs.manager.List()
	out := make([]game.Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	ok(c, http.StatusOK, fmt.Sprintf("Сессий: %d", len(out)), out)
}

func (rs *RestServer) handleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	s, err := rs.manager.Create(c.Request.Context(), req.LevelID)
	if err != nil {
		rs.fail(c, "Не удалось запустить уровень", err)
		return
	}
	rs.log.Info("сессия %s: уровень %s", s.ID(), req.LevelID)
	ok(c, http.StatusCreated, "Сессия создана", s.Snapshot())
}

// session достает сессию из пути или отвечает 404
func (rs *RestServer) session(c *gin.Context) (*game.Session, bool) {
	s, err := rs.manager.Get(c.Param("id"))
	if err != nil {
		rs.fail(c, "Сессия не найдена", err)
		return nil, false
	}
	return s, true
}

func (rs *RestServer) handleGetSession(c *gin.Context) {
	s, found := rs.session(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, "Сессия", s.Snapshot())
}

func (rs *RestServer) handleDeleteSession(c *gin.Context) {
	if err := rs.manager.Remove(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, "Ошибка удаления сессии", err)
		return
	}
	ok(c, http.StatusOK, "Сессия завершена", nil)
}

func (rs *RestServer) handleMove(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	dir, err := entity.ParseDirection(req.Direction)
	if err != nil {
		rs.fail(c, "Неверное направление", err)
		return
	}

	s, found := rs.session(c)
	if !found {
		return
	}

	_, span := observability.StartSpan(c.Request.Context(), "session.move", s.ID(),
		attribute.String("blockroll.direction", dir.String()))
	defer span.End()

	tr, err := s.Move(dir)
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Ход отклонен", err)
		return
	}
	ok(c, http.StatusAccepted, "Ход принят", MoveResponse{
		Direction: dir.String(),
		From:      tr.From.String(),
		To:        tr.To.String(),
		Session:   s.Snapshot(),
	})
}

func (rs *RestServer) handlePause(c *gin.Context) {
	s, found := rs.session(c)
	if !found {
		return
	}
	s.Pause()
	ok(c, http.StatusOK, "Пауза", s.Snapshot())
}

func (rs *RestServer) handleResume(c *gin.Context) {
	s, found := rs.session(c)
	if !found {
		return
	}
	s.Resume()
	ok(c, http.StatusOK, "Продолжение", s.Snapshot())
}

func (rs *RestServer) handleReset(c *gin.Context) {
	s, found := rs.session(c)
	if !found {
		return
	}
	// попытка сохраняется до перезапуска
	if _, err := rs.manager.SaveReplay(c.Request.Context(), s); err != nil {
		rs.log.Warn("сессия %s: запись не сохранена: %v", s.ID(), err)
	}
	if err := s.Reset(); err != nil {
		rs.fail(c, "Ошибка перезапуска", err)
		return
	}
	ok(c, http.StatusOK, "Уровень перезапущен", s.Snapshot())
}

func (rs *RestServer) handleSessionReplay(c *gin.Context) {
	s, found := rs.session(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, "Запись текущей попытки", s.Recording())
}

// === Записи ===

func (rs *RestServer) replays(c *gin.Context) (storage.ReplayRepo, bool) {
	repo := rs.manager.Replays()
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "Хранилище записей не настроено"})
		return nil, false
	}
	return repo, true
}

func (rs *RestServer) handleListReplays(c *gin.Context) {
	repo, found := rs.replays(c)
	if !found {
		return
	}
	recs, err := repo.List(c.Request.Context(), c.Query("level_id"))
	if err != nil {
		rs.fail(c, "Ошибка получения записей", err)
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Записей: %d", len(recs)), recs)
}

func (rs *RestServer) handleGetReplay(c *gin.Context) {
	repo, found := rs.replays(c)
	if !found {
		return
	}
	rec, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		rs.fail(c, "Запись не найдена", err)
		return
	}
	ok(c, http.StatusOK, "Запись", rec)
}

// handleVerifyReplay проигрывает запись на ее уровне
func (rs *RestServer) handleVerifyReplay(c *gin.Context) {
	repo, found := rs.replays(c)
	if !found {
		return
	}
	ctx, span := observability.StartSpan(c.Request.Context(), "replay.verify", "",
		attribute.String("blockroll.replay_id", c.Param("id")))
	defer span.End()

	rec, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Запись не найдена", err)
		return
	}
	lvl, err := rs.manager.Levels().Get(ctx, rec.LevelID)
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Уровень записи не найден", err)
		return
	}
	res, err := replay.Run(lvl, rec)
	if err != nil {
		observability.RecordError(span, err)
		rs.fail(c, "Запись не воспроизводится", err)
		return
	}
	ok(c, http.StatusOK, "Запись воспроизведена", VerifyResponse{
		ReplayID:  rec.ID,
		Pose:      res.Pose.String(),
		Moves:     res.Moves,
		Completed: res.Completed,
	})
}

// handleHealth возвращает статус здоровья сервиса
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now().Unix(),
		"sessions": rs.manager.Count(),
	})
}

// Start запускает HTTP сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.port)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
