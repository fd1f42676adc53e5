package main

import (
	"context"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/AbdallahFarid/ocr2/config"
	"github.com/AbdallahFarid/ocr2/handlers"
	"github.com/AbdallahFarid/ocr2/ocr"
	"github.com/AbdallahFarid/ocr2/repository"
	"github.com/AbdallahFarid/ocr2/service"
	"github.com/AbdallahFarid/ocr2/storage"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database connection
	db, err := initPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to initialize Postgres:", err)
	}
	defer db.Close()

	// Initialize storage
	imageStorage, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("Storage initialized")

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	// Initialize the template registry: replay the persisted version
	// history first, then seed the built-in layouts for any bank that has
	// no published version yet. Seeding before the replay would re-publish
	// version 1 on every restart.
	ctx := context.Background()
	registry := service.NewTemplateRegistry(templateRepo)
	if err := registry.LoadPersisted(ctx); err != nil {
		log.Fatal("Failed to load persisted templates:", err)
	}
	if err := service.SeedTemplates(ctx, registry, service.DefaultRules(cfg)); err != nil {
		log.Fatal("Failed to seed templates:", err)
	}
	log.Println("Template registry initialized")

	// Initialize OCR engines
	general, pageLines := initAzure()
	numeric := ocr.NewTesseractNumericRecognizer()
	classifier := initClassifier(cfg.ExemplarDir)

	// Initialize services
	pipeline := service.NewPipelineService(
		service.PipelineWithClassifier(classifier),
		service.PipelineWithGeneralRecognizer(general),
		service.PipelineWithLineRecognizer(pageLines),
		service.PipelineWithNumericRecognizer(numeric),
		service.PipelineWithLocator(&ocr.Locator{}),
		service.PipelineWithTemplates(registry),
		service.PipelineWithDocumentStore(docRepo),
		service.PipelineWithLedger(auditRepo),
		service.PipelineWithConfig(cfg),
	)

	review := service.NewReviewService(
		service.ReviewWithDocumentStore(docRepo),
		service.ReviewWithLedger(auditRepo),
		service.ReviewWithTemplates(registry),
		service.ReviewWithConfig(cfg),
	)

	export := service.NewExportService(docRepo)

	// Initialize handlers
	docHandler := handlers.NewDocumentHandler(docRepo, pipeline, imageStorage, cfg.MaxUploadBytes)
	reviewHandler := handlers.NewReviewHandler(review)
	exportHandler := handlers.NewExportHandler(export)
	templateHandler := handlers.NewTemplateHandler(registry)

	// Setup Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Document endpoints
		api.POST("/documents", docHandler.IngestDocument)
		api.GET("/documents", docHandler.ListDocuments)
		api.GET("/documents/:id", docHandler.GetDocument)
		api.GET("/documents/:id/export", exportHandler.ExportDocument)
		api.GET("/documents/:id/audit", reviewHandler.GetAuditTrail)

		// Review endpoints
		api.GET("/review", reviewHandler.ListQueue)
		api.GET("/review/:id/corrections", reviewHandler.ListCorrections)
		api.POST("/review/:id/corrections", reviewHandler.ApplyCorrections)
		api.POST("/review/:id/finalize", reviewHandler.Finalize)

		// Template endpoints
		api.GET("/templates", templateHandler.ListBanks)
		api.GET("/templates/:bank", templateHandler.GetTemplate)
		api.POST("/templates", templateHandler.PublishTemplate)
	}

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initPostgres(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Postgres connection established")
	return pool, nil
}

// initClassifier builds the bank classifier from per-bank logo exemplars
// (one image per file, named <BANK>.png/jpg). With no exemplars the
// classifier is inert and every document takes the generic path unless it
// carries an ingestion bank hint.
func initClassifier(dir string) ocr.Classifier {
	exemplars := make(map[string]image.Image)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Warning: classifier exemplar directory %s unavailable: %v", dir, err)
		return &ocr.StubClassifier{}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("Warning: failed to load exemplar %s: %v", e.Name(), err)
			continue
		}
		bank := strings.ToUpper(strings.TrimSuffix(e.Name(), ext))
		exemplars[bank] = img
	}
	if len(exemplars) == 0 {
		log.Printf("Warning: no classifier exemplars in %s; documents route via the generic template", dir)
		return &ocr.StubClassifier{}
	}
	log.Printf("Bank classifier initialized with %d exemplars", len(exemplars))
	return ocr.NewHeuristicClassifier(exemplars)
}

func initAzure() (*ocr.AzureRecognizer, *ocr.AzureRecognizer) {
	endpoint := os.Getenv("AZURE_CV_ENDPOINT")
	apiKey := os.Getenv("AZURE_CV_KEY")
	if endpoint == "" || apiKey == "" {
		log.Println("Warning: AZURE_CV_ENDPOINT / AZURE_CV_KEY not set")
	}

	general := ocr.NewAzureRecognizer(endpoint, apiKey, computervision.Unk)
	pageLines := ocr.NewAzureRecognizer(endpoint, apiKey, computervision.Unk)
	log.Println("Azure Computer Vision client initialized")
	return general, pageLines
}
