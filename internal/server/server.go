package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxBodySize = 64 * 1024

// PollConfig holds the refetch cadences advertised to clients.
type PollConfig struct {
	Chats    time.Duration
	Messages time.Duration
}

type Options struct {
	Poll        PollConfig
	CORSOrigins []string
	// Limiter guards the send routes. Nil disables rate limiting.
	Limiter *RateLimiter
}

type Server struct {
	chats    *usecase.ChatsUsecase
	messages *usecase.MessagesUsecase
	groups   *usecase.GroupsUsecase
	verifier TokenVerifier
	validate *validator.Validate
	logger   *logrus.Logger
	opts     Options
}

func NewServer(
	c *usecase.ChatsUsecase,
	m *usecase.MessagesUsecase,
	g *usecase.GroupsUsecase,
	verifier TokenVerifier,
	v *validator.Validate,
	logger *logrus.Logger,
	opts Options,
) *Server {
	return &Server{
		chats:    c,
		messages: m,
		groups:   g,
		verifier: verifier,
		validate: v,
		logger:   logger,
		opts:     opts,
	}
}

// Router builds the HTTP API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(collectMetrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Poll-Interval", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limit := func(next http.Handler) http.Handler { return next }
	if s.opts.Limiter != nil {
		limit = s.opts.Limiter.Middleware
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodySize))
		r.Use(authenticate(s.verifier, s.logger))

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", s.CreateOrGetChat)
			r.Get("/", s.ListChats)
			r.Get("/{chatID}", s.GetChat)
			r.Get("/{chatID}/messages", s.ListDirectMessages)
			r.With(limit).Post("/{chatID}/messages", s.SendDirectMessage)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", s.CreateGroup)
			r.Get("/", s.ListGroups)
			r.Get("/{groupID}", s.GetGroup)
			r.Delete("/{groupID}", s.DeleteGroup)
			r.Post("/{groupID}/join", s.JoinGroup)
			r.Post("/{groupID}/leave", s.LeaveGroup)
			r.Get("/{groupID}/messages", s.ListGroupMessages)
			r.With(limit).Post("/{groupID}/messages", s.SendGroupMessage)
		})
	})

	return r
}

// decode reads and validates a JSON body into dest. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := s.validate.Struct(dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return false
	}
	return true
}

// setPollInterval advertises how long the client should wait before the next
// fetch, in whole seconds rounded up.
func setPollInterval(w http.ResponseWriter, interval time.Duration) {
	w.Header().Set("X-Poll-Interval", strconv.Itoa(int(math.Ceil(interval.Seconds()))))
}
