package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/kelime/internal/api"
	"github.com/kiliankoe/kelime/internal/archive"
	"github.com/kiliankoe/kelime/internal/config"
	"github.com/kiliankoe/kelime/internal/game"
	"github.com/kiliankoe/kelime/internal/store"
	"github.com/kiliankoe/kelime/internal/words"
	"github.com/kiliankoe/kelime/internal/ws"
	staticserver "github.com/kiliankoe/kelime/static"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Kelime - two player Turkish word game server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT              Port to listen on (default: 8080)
  LOG_LEVEL         trace, debug, info, warn, error (default: info)
  LOG_FORMAT        console or json (default: console)
  ALLOWED_ORIGINS   Comma separated browser origins, * for any (default: *)
  WORDS_FILE        Target words replacing the built-in ones (optional)
  ALLOWED_WORDS_FILE  Extra words accepted as guesses (optional; WORDS_FILE
                      drops the built-in guess list, so set both for real play)
  DUEL_SAME_WORD    Give both duel players the same word (default: false)
  ROOM_IDLE_TTL     Evict rooms nobody is connected to after this long (default: 2h)
  JANITOR_INTERVAL  How often idle rooms are swept (default: 5m)
  SEND_BUFFER       Outbound messages queued per connection (default: 32)
  WRITE_TIMEOUT     Websocket write deadline (default: 10s)
  ARCHIVE_DRIVER    none, file or sqlite (default: none)
  ARCHIVE_PATH      Archive file (default: ./data/results.db)
  STATIC_DIR        Directory with a built web client (optional)

A .env file in the working directory is loaded first.

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Kelime %s\n", version)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	setupLogging(cfg)
	logger := zerologlog.Logger

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	var out io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	zerologlog.Logger = zerolog.New(out).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func loadWords(cfg config.Config) (*words.List, error) {
	var (
		dict *words.List
		err  error
	)
	if cfg.WordsFile != "" {
		dict, err = words.FromFile(cfg.WordsFile)
	} else {
		dict, err = words.Embedded()
	}
	if err != nil || cfg.AllowedWordsFile == "" {
		return dict, err
	}
	extra, err := words.ReadFile(cfg.AllowedWordsFile)
	if err != nil {
		return nil, err
	}
	dict.Allow(extra)
	return dict, nil
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dict, err := loadWords(cfg)
	if err != nil {
		return fmt.Errorf("load words: %w", err)
	}
	logger.Info().Int("targets", dict.Len()).Int("guesses", dict.AllowedLen()).Str("file", cfg.WordsFile).Msg("word list loaded")

	opts := []game.Option{
		game.WithLogger(logger.With().Str("component", "rooms").Logger()),
		game.WithRules(game.Rules{SameWordDuel: cfg.DuelSameWord}),
	}
	arch, err := archive.Open(cfg.ArchiveDriver, cfg.ArchivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	var results archive.Lister
	if arch != nil {
		defer arch.Close()
		opts = append(opts, game.WithArchiver(arch))
		results, _ = arch.(archive.Lister)
		logger.Info().Str("driver", cfg.ArchiveDriver).Str("path", cfg.ArchivePath).Msg("results archive enabled")
	}
	rm := game.NewRoomManager(store.NewMemory(), dict, opts...)

	hub := ws.NewHub(logger.With().Str("component", "hub").Logger())
	sock := ws.New(rm, hub, ws.Options{
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
		AllowOrigin:  cfg.AllowsOrigin,
	}, logger.With().Str("component", "live").Logger())

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		logger.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})
	r.Use(cors(cfg))

	api.New(rm, results, logger.With().Str("component", "api").Logger()).Register(r)
	sock.MountWebSocket(r)
	sio := sock.MountSocketIO(r)
	defer sio.Close()

	static := staticserver.Handler(cfg.StaticDir)
	r.NoRoute(func(c *gin.Context) {
		static.ServeHTTP(c.Writer, c.Request)
	})

	go rm.RunJanitor(ctx, cfg.JanitorInterval, cfg.RoomIdleTTL)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cors answers browser preflights for the REST routes. Socket.IO handles its
// own preflight.
func cors(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || strings.HasPrefix(c.Request.URL.Path, "/socket.io") {
			c.Next()
			return
		}
		if !cfg.AllowsOrigin(origin) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET,PUT,PATCH,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
