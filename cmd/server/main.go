package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"studymate/internal/api"
	"studymate/internal/config"
	"studymate/internal/db"
	"studymate/internal/services"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	questionService := services.NewQuestionService(conn)
	setService := services.NewStudySetService(conn)
	documentService := services.NewDocumentService(conn, cfg.UploadDir)
	pdfService := services.NewPDFService()
	aiService := services.NewAIService(
		cfg.OpenAIKey,
		cfg.OpenAIModel,
		cfg.OpenAIEndpoint,
		cfg.VisionKey,
		cfg.VisionBaseURL,
		cfg.VisionModel,
		pdfService,
	)
	ingestionService := services.NewIngestionService(documentService, aiService, questionService, setService)
	tutorService := services.NewTutorService(conn, aiService, questionService, setService)

	server := api.NewServer(questionService, setService, documentService, ingestionService, tutorService)
	mux := http.NewServeMux()

	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
