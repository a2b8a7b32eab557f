package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quizduel/backend/internal/account"
	"github.com/quizduel/backend/internal/api"
	"github.com/quizduel/backend/internal/event"
	"github.com/quizduel/backend/internal/friend"
	"github.com/quizduel/backend/internal/game"
	"github.com/quizduel/backend/internal/gateway"
	"github.com/quizduel/backend/internal/leaderboard"
	"github.com/quizduel/backend/internal/quiz"
	"github.com/quizduel/backend/internal/score"
	"github.com/quizduel/backend/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		Addr string
	}

	Game struct {
		QuestionCount int
		RandSeed      int64
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Game struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Score struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			game  *pgxpool.Pool
			score *pgxpool.Pool
		}
	}

	service struct {
		accounts    *account.Service
		quiz        *quiz.Service
		game        *game.Service
		score       *score.Service
		leaderboard *leaderboard.Service
		friends     *friend.Service
		gateway     *gateway.Gateway
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.game, err = connect(s.c.Postgres.Game.Addr, s.c.Postgres.Game.User, s.c.Postgres.Game.Pass, s.c.Postgres.Game.Name)
	if err != nil {
		return fmt.Errorf("postgres: game: %w", err)
	}

	s.infra.postgres.score, err = connect(s.c.Postgres.Score.Addr, s.c.Postgres.Score.User, s.c.Postgres.Score.Pass, s.c.Postgres.Score.Name)
	if err != nil {
		return fmt.Errorf("postgres: score: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	var rng *rand.Rand
	if seed := s.c.Game.RandSeed; seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}

	s.service.accounts = account.NewService(account.Config{
		DB: s.infra.postgres.score,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		DB:   s.infra.postgres.game,
		Rand: rng,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.score,
	})

	s.service.game = game.NewService(game.Config{
		Store:         game.NewPGStore(s.infra.postgres.game),
		Bank:          s.service.quiz,
		Users:         s.service.accounts,
		Ledger:        s.service.score,
		EventBus:      s.eb,
		QuestionCount: s.c.Game.QuestionCount,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.friends = friend.NewService(friend.Config{
		DB: s.infra.postgres.score,
	})

	s.service.gateway = gateway.New(gateway.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.pubsub,
		Prefix:   s.c.Redis.Pubsub.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.Use(telemetry.HTTPLogger(slog.Default()))

	api.New(api.Config{
		Router:      e,
		Auth:        newAuthClient(s.c.Auth.Addr),
		Game:        s.service.game,
		Quiz:        s.service.quiz,
		Leaderboard: s.service.leaderboard,
		Friends:     s.service.friends,
		Accounts:    s.service.accounts,
		Scores:      s.service.score,
		Gateway:     s.service.gateway,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.game.Close()
	s.infra.postgres.score.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
