package main

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/studydeck/studydeck-api/auth"
	"github.com/studydeck/studydeck-api/config"
	"github.com/studydeck/studydeck-api/generation"
	"github.com/studydeck/studydeck-api/handlers"
	"github.com/studydeck/studydeck-api/llm"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/middleware"
	"github.com/studydeck/studydeck-api/study"
)

func init() {
	// Load .env file if not in a managed environment
	if os.Getenv("RAILWAY_ENVIRONMENT_NAME") == "" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, environment variables might not be loaded: %v", err)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("set up logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.Connect(cfg)
	if err != nil {
		zlog.Fatal("connect database", "error", err.Error())
	}

	var temperature = cfg.OpenAITemperature
	llmClient, err := llm.NewClient(llm.Config{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		ModelName:       cfg.OpenAIModel,
		Temperature:     &temperature,
		MaxOutputTokens: cfg.OpenAIMaxOutputTokens,
	}, zlog)
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && llmErr.Code == llm.CodeConfiguration {
			zlog.Warn("completion service not configured, AI generation disabled", "error", err.Error())
			llmClient = llm.Disabled{}
		} else {
			zlog.Fatal("set up completion client", "error", err.Error())
		}
	}

	generations := generation.NewService(db, llmClient, zlog)
	sessions := study.NewStore()

	DBHandler := &handlers.DBHandler{DB: db, Log: zlog, Generations: generations, Sessions: sessions}
	userSync := &middleware.UserSync{DB: db, Log: zlog}
	mux := http.NewServeMux()

	// User
	mux.HandleFunc("GET /api/users/me", userSync.RequireUser(DBHandler.Me))

	// Deck
	mux.HandleFunc("GET /api/decks", userSync.RequireUser(DBHandler.ListDecks))
	mux.HandleFunc("POST /api/decks", userSync.RequireUser(DBHandler.CreateDeck))
	mux.HandleFunc("GET /api/decks/{deckID}", userSync.RequireUser(DBHandler.GetDeckByID))
	mux.HandleFunc("PUT /api/decks/{deckID}", userSync.RequireUser(DBHandler.UpdateDeckByID))
	mux.HandleFunc("DELETE /api/decks/{deckID}", userSync.RequireUser(DBHandler.DeleteDeckByID))

	// Flashcard
	mux.HandleFunc("POST /api/decks/{deckID}/flashcards", userSync.RequireUser(DBHandler.CreateFlashcard))
	mux.HandleFunc("GET /api/decks/{deckID}/flashcards", userSync.RequireUser(DBHandler.GetFlashcardsForDeck))
	mux.HandleFunc("GET /api/decks/{deckID}/flashcards/{flashcardID}", userSync.RequireUser(DBHandler.GetFlashcardByID))
	mux.HandleFunc("PUT /api/decks/{deckID}/flashcards/{flashcardID}", userSync.RequireUser(DBHandler.UpdateFlashcardByID))
	mux.HandleFunc("DELETE /api/decks/{deckID}/flashcards/{flashcardID}", userSync.RequireUser(DBHandler.DeleteFlashcardByID))

	// AI generation: suggest, commit, history
	mux.HandleFunc("POST /api/decks/{deckID}/generations", userSync.RequireUser(DBHandler.CreateGeneration))
	mux.HandleFunc("GET /api/decks/{deckID}/generations", userSync.RequireUser(DBHandler.ListGenerations))
	mux.HandleFunc("POST /api/decks/{deckID}/flashcards/bulk", userSync.RequireUser(DBHandler.CommitGeneration))

	// Study sessions
	mux.HandleFunc("POST /api/decks/{deckID}/study", userSync.RequireUser(DBHandler.StartStudySession))
	mux.HandleFunc("GET /api/decks/{deckID}/study/{sessionID}", userSync.RequireUser(DBHandler.GetStudySession))
	mux.HandleFunc("POST /api/decks/{deckID}/study/{sessionID}/{action}", userSync.RequireUser(DBHandler.ApplyStudyAction))
	mux.HandleFunc("DELETE /api/decks/{deckID}/study/{sessionID}", userSync.RequireUser(DBHandler.EndStudySession))

	// Auth boundary: Auth0 bearer tokens in production, HS256 cookie
	// sessions for local development.
	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth0Domain != "" {
		authMiddleware, err = middleware.EnsureValidToken(cfg)
		if err != nil {
			zlog.Fatal("set up auth0 middleware", "error", err.Error())
		}
	} else {
		tokens, err := auth.NewTokenService(cfg.JWTSecretKey)
		if err != nil {
			zlog.Fatal("set up token service", "error", err.Error())
		}
		mux.HandleFunc("POST /api/auth/login", handlers.DevLogin(tokens))
		authMiddleware = tokens.Middleware
	}

	// Configure CORS with specific options
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(authMiddleware(mux))

	handler := middleware.RequestLogger(zlog)(corsHandler)

	serverAddr := "0.0.0.0:" + cfg.Port
	zlog.Info("server listening", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, handler); err != nil {
		zlog.Fatal("server stopped", "error", err.Error())
	}
}
