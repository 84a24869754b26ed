package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/terrain-stream/internal/cellindex"
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/middleware"
	"github.com/annel0/terrain-stream/internal/scene"
	"github.com/annel0/terrain-stream/internal/streamer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// StatusSource отдаёт последнее состояние цикла стриминга
type StatusSource interface {
	Status() *streamer.Status
}

// CellLookup даёт доступ к индексу ячеек только на чтение
type CellLookup interface {
	Lookup(cell grid.CellCoord) (cellindex.Entry, bool)
	Len() int
}

// ResourceStats отдаёт счётчики ресурсов отображения
type ResourceStats interface {
	Stats() scene.Stats
}

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	status     StatusSource
	cells      CellLookup
	resources  ResourceStats
	port       string
	metrics    *ServerMetrics
	log        *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string               // порт для запуска сервера
	Status    StatusSource         // состояние цикла стриминга
	Cells     CellLookup           // индекс ячеек
	Resources ResourceStats        // реестр ресурсов, может быть nil
	Registry  *prometheus.Registry // регистр метрик, nil: дефолтный
	Logger    *logging.Logger
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("rest_api"))

	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	// CORS подключается до всех маршрутов, включая /metrics
	router.Use(corsMiddleware())

	promMw := middleware.NewPrometheusMiddleware("rest_api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	server := &RestServer{
		router:    router,
		status:    config.Status,
		cells:     config.Cells,
		resources: config.Resources,
		port:      config.Port,
		metrics:   NewServerMetrics(),
		log:       config.Logger,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Группа API, только чтение
	api := rs.router.Group("/api")
	{
		api.GET("/status", rs.handleStatus)
		api.GET("/tiles", rs.handleTiles)
		api.GET("/cells/:x/:y", rs.handleCell)
		api.GET("/lookup", rs.handleLookup)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// TileCounts содержит число тайлов по состояниям
type TileCounts struct {
	Resident int `json:"resident"`
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
}

// StatusResponse описывает ответ /api/status
type StatusResponse struct {
	Position  grid.WorldPosition     `json:"position"`
	Center    grid.TileCoord         `json:"center"`
	Cycles    uint64                 `json:"cycles"`
	Tiles     TileCounts             `json:"tiles"`
	Pending   int                    `json:"pending"`
	Resources *scene.Stats           `json:"resources,omitempty"`
	IndexSize int                    `json:"index_size"`
	IndexAt   time.Time              `json:"index_built_at"`
	LastError string                 `json:"last_error,omitempty"`
	Server    map[string]interface{} `json:"server"`
}

// LookupResponse описывает ответ /api/lookup
type LookupResponse struct {
	Cell  grid.CellCoord  `json:"cell"`
	Entry cellindex.Entry `json:"entry"`
}

func (rs *RestServer) handleStatus(c *gin.Context) {
	st := rs.status.Status()
	resp := StatusResponse{
		Position:  st.Position,
		Center:    st.Center,
		Cycles:    st.Cycles,
		Pending:   st.Pending,
		IndexSize: st.IndexSize,
		IndexAt:   st.IndexAt,
		LastError: st.LastError,
	}
	if snap := st.Cache; snap != nil {
		resp.Tiles = TileCounts{
			Resident: len(snap.Resident),
			Pending:  len(snap.Pending),
			Failed:   len(snap.Failed),
		}
	}
	if rs.resources != nil {
		stats := rs.resources.Stats()
		resp.Resources = &stats
	}

	server := map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"server_time": time.Now().Unix(),
		"memory":      rs.metrics.GetDetailedMemoryStats(),
	}
	if rss, err := rs.metrics.GetRSS(); err == nil {
		server["rss_mb"] = fmt.Sprintf("%.2f", rss)
	}
	resp.Server = server

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние получено",
		Data:    resp,
	})
}

func (rs *RestServer) handleTiles(c *gin.Context) {
	snap := rs.status.Status().Cache
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Кеш ещё не опубликовал состояние",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Тайлы получены",
		Data:    snap,
	})
}

func (rs *RestServer) handleCell(c *gin.Context) {
	x, errX := strconv.ParseInt(c.Param("x"), 10, 32)
	y, errY := strconv.ParseInt(c.Param("y"), 10, 32)
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Координаты ячейки должны быть целыми числами",
		})
		return
	}

	rs.respondLookup(c, grid.CellCoord{X: int32(x), Y: int32(y)})
}

func (rs *RestServer) handleLookup(c *gin.Context) {
	x, errX := strconv.ParseFloat(c.Query("x"), 64)
	y, errY := strconv.ParseFloat(c.Query("y"), 64)
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Параметры x и y обязательны и должны быть числами",
		})
		return
	}

	rs.respondLookup(c, grid.CellOf(grid.WorldPosition{X: x, Y: y}))
}

func (rs *RestServer) respondLookup(c *gin.Context, cell grid.CellCoord) {
	entry, ok := rs.cells.Lookup(cell)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Ячейка %s не загружена", cell),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Ячейка найдена",
		Data:    LookupResponse{Cell: cell, Entry: entry},
	})
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает HTTP сервер в отдельной горутине
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Error("❌ Ошибка REST API сервера: %v", err)
		}
	}()

	rs.log.Info("✅ REST API сервер запущен на http://localhost%s", rs.port)
	rs.log.Info("📋 Доступные эндпоинты: /health /metrics /api/status /api/tiles /api/cells/:x/:y /api/lookup")
	return nil
}

// Stop останавливает HTTP сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := rs.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при остановке HTTP сервера: %w", err)
	}
	rs.log.Info("🛑 REST API сервер остановлен")
	return nil
}
