package taskqueue

import (
	"fmt"

	"meshgate/internal/utils"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

func logger() *zerolog.Logger { return utils.Logger("taskqueue") }

// Workers bundles the asynq client and server
type Workers struct {
	Client *asynq.Client
	srv    *asynq.Server
}

// StartWorkers starts asynq workers processing tasks with handler
func StartWorkers(redisAddr, password string, db, concurrency int, handler *Handler) (*Workers, error) {
	logger().Info().Str("redis", redisAddr).Int("concurrency", concurrency).Msg("starting asynq workers")
	opt := asynq.RedisClientOpt{Addr: redisAddr, Password: password, DB: db}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqLogger{logger()},
	})
	if err := srv.Start(handler.Mux()); err != nil {
		return nil, fmt.Errorf("start workers: %w", err)
	}
	return &Workers{Client: asynq.NewClient(opt), srv: srv}, nil
}

// StopWorkers stops workers
func (w *Workers) StopWorkers() {
	logger().Info().Msg("stopping workers")
	w.srv.Shutdown()
	if err := w.Client.Close(); err != nil {
		logger().Warn().Err(err).Msg("failed to close asynq client")
	}
	logger().Info().Msg("workers stopped")
}

// asynqLogger routes asynq's logging to zerolog
type asynqLogger struct {
	l *zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
