package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quizpicks/internal/config"
	"quizpicks/internal/service"
	"quizpicks/internal/transport/rest/handler"
	"quizpicks/internal/transport/rest/middleware"
	"quizpicks/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	Config          config.AppConfig
	AuthService     *service.AuthService
	QuestionService *service.QuestionService
	ResponseService *service.ResponseService
	QueryService    *service.QueryService
	ProductService  *service.ProductService
	RankingService  *service.RankingService
	VisionService   *service.VisionService
	WSHub           *ws.Hub
	Logger          *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	quizHandler := handler.NewQuizHandler(c.QuestionService, c.ResponseService, c.QueryService, log)
	productHandler := handler.NewProductHandler(c.ProductService, log)
	rankingHandler := handler.NewRankingHandler(c.RankingService, log)
	visionHandler := handler.NewVisionHandler(c.VisionService, log)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Config.AuthEnabled, log)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService, c.Config.AuthEnabled)
	limiter := middleware.NewRateLimiter(c.Config.RateLimitPerSecond, c.Config.RateLimitBurst)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.Config.CorsAllowedOrigins))
	r.Use(middleware.RequestLogger(log.Named("http")))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware)

	// Public routes
	api.HandleFunc("/auth/session", authHandler.Session).Methods("POST", "OPTIONS")
	api.HandleFunc("/questions", quizHandler.ListQuestions).Methods("GET", "OPTIONS")

	// WebSocket route (token in query param, checked by the handler)
	api.HandleFunc("/ws/users/{userId}", wsHandler.UserWS).Methods("GET")

	// Shopper routes (require user auth when enabled)
	user := api.NewRoute().Subrouter()
	user.Use(authMW.RequireUser)

	user.HandleFunc("/questions", quizHandler.CreateQuestion).Methods("POST", "OPTIONS")
	user.HandleFunc("/responses", quizHandler.SubmitResponses).Methods("POST", "OPTIONS")
	user.HandleFunc("/queries/generate", quizHandler.GenerateQueries).Methods("POST", "OPTIONS")
	user.HandleFunc("/products/store", productHandler.StoreSearch).Methods("POST", "OPTIONS")
	user.HandleFunc("/products/recommended/store", productHandler.StoreRecommended).Methods("POST", "OPTIONS")
	user.HandleFunc("/ranking/build", rankingHandler.Build).Methods("POST", "OPTIONS")
	user.HandleFunc("/ranking", rankingHandler.Get).Methods("GET", "OPTIONS")
	user.HandleFunc("/ranking/replenish", rankingHandler.Replenish).Methods("POST", "OPTIONS")
	user.HandleFunc("/vision/process", visionHandler.Process).Methods("POST", "OPTIONS")
	user.HandleFunc("/vision/run", visionHandler.Run).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if strings.TrimSpace(allowedOrigins) == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
