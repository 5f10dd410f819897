package api

import (
	"github.com/fyerfyer/rag-dataset/api/handler"
	"github.com/fyerfyer/rag-dataset/api/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Ingest  *handler.IngestHandler
	Article *handler.ArticleHandler
	Dataset *handler.DatasetHandler
	System  *handler.SystemHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers) *gin.Engine {
	middleware.RegisterValidators()

	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(Cors())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 导入API
		ingest := api.Group("/ingest")
		{
			ingest.POST("", h.Ingest.StartIngest)
			ingest.POST("/upload", h.Ingest.Upload)
			ingest.GET("/stream/:run_id", h.Ingest.Stream)
			ingest.GET("/runs/:run_id", h.Ingest.GetRun)
		}

		// 文章API
		articles := api.Group("/articles")
		{
			articles.GET("", h.Article.List)
			articles.GET("/export/all", h.Article.ExportAll)
			articles.GET("/:id", h.Article.Get)
			articles.GET("/:id/chunks", h.Article.Chunks)
			articles.GET("/:id/export", h.Article.Export)
			articles.DELETE("/:id", h.Article.Delete)
		}

		// 数据集API
		api.GET("/dataset/:id", h.Dataset.Get)
		api.GET("/dataset/:id/download", h.Dataset.Download)
		api.POST("/validate/:id", h.Dataset.Validate)

		// 产物下载
		api.GET("/files/:id/:filename", h.Article.File)

		api.GET("/health", h.System.Health)
		api.GET("/config", h.System.Config)
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
