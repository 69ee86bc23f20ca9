package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsweb"

	"github.com/banshee-data/footscan/internal/config"
	"github.com/banshee-data/footscan/internal/scan/pipeline"
	"github.com/banshee-data/footscan/internal/scan/session"
	"github.com/banshee-data/footscan/internal/scan/transport"
	"github.com/banshee-data/footscan/internal/scan/tuning"
	"github.com/banshee-data/footscan/internal/store"
	"github.com/banshee-data/footscan/internal/timeutil"
	"github.com/banshee-data/footscan/internal/version"
)

type serveOptions struct {
	configPath string
	listen     string
	debug      string
	dbPath     string
	noRecord   bool
	autoStart  bool
	diag       bool
	trace      bool
	fps        float64
}

func parseServeFlags(args []string) (serveOptions, error) {
	var o serveOptions
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Scan config JSON (default: "+config.DefaultConfigPath+" if present)")
	fs.StringVar(&o.listen, "listen", "", "gRPC listen address (overrides config)")
	fs.StringVar(&o.debug, "debug-listen", "", "Debug HTTP listen address (overrides config, empty value in config disables)")
	fs.StringVar(&o.dbPath, "db", "", "Session database path (overrides config)")
	fs.BoolVar(&o.noRecord, "no-record", false, "Do not record sessions to the database")
	fs.BoolVar(&o.autoStart, "autostart", false, "Start a scan immediately")
	fs.BoolVar(&o.diag, "diag", false, "Enable diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "Enable per-frame trace logging")
	fs.Float64Var(&o.fps, "synthetic-fps", 0, "Synthetic source frame rate (0 uses the source default)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func loadConfig(path string) (*config.ScanConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			log.Printf("no %s, using built-in defaults", config.DefaultConfigPath)
			return config.DefaultScanConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadScanConfig(path)
}

// service holds everything serve wires together.
type service struct {
	cfg       *config.ScanConfig
	tuning    *tuning.Store
	pipeline  *pipeline.Pipeline
	source    *session.Synthetic
	session   *session.Session
	publisher *transport.Publisher
	db        *store.DB
	recorder  *store.Recorder
	mux       *http.ServeMux
}

func newService(cfg *config.ScanConfig, o serveOptions) (*service, error) {
	s := &service{cfg: cfg}
	s.tuning = tuning.NewStore(cfg.TuningState())
	s.pipeline = pipeline.New(pipeline.Config{Tuning: s.tuning, Clock: timeutil.RealClock{}})

	synth := session.DefaultSyntheticConfig()
	if o.fps > 0 {
		synth.FPS = o.fps
	}
	s.source = session.NewSynthetic(synth, nil)

	pubCfg := transport.DefaultConfig()
	pubCfg.ListenAddr = cfg.GetListenAddr()
	if o.listen != "" {
		pubCfg.ListenAddr = o.listen
	}
	s.publisher = transport.NewPublisher(pubCfg)

	sessCfg := session.Config{
		Source:          s.source,
		Pipeline:        s.pipeline,
		Points:          s.publisher,
		Preview:         s.publisher,
		PreviewMaxWidth: cfg.GetPreviewMaxWidth(),
	}

	if cfg.GetRecordFrames() && !o.noRecord {
		path := cfg.GetDBPath()
		if o.dbPath != "" {
			path = o.dbPath
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.recorder = store.NewRecorder(db, 0)
		sessCfg.Recorder = s.recorder
	}
	s.session = session.New(sessCfg)

	s.mux = http.NewServeMux()
	debug := tsweb.Debugger(s.mux)
	debug.KV("Version", version.String())
	debug.KVFunc("Scan running", func() any { return s.session.Running() })
	debug.KVFunc("Tuning", func() any { return s.tuning.Load() })
	debug.KVFunc("Pipeline", func() any { return s.pipeline.Stats() })
	debug.KVFunc("Publisher", func() any { return s.publisher.Stats() })
	if s.db != nil {
		debug.KVFunc("Recorder", func() any { return s.recorder.Stats() })
		if err := s.db.AttachAdminRoutes(debug); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *service) probe(ctx context.Context) session.Capability {
	return session.Probe(ctx, s.source)
}

// run serves until ctx is done. debugLis may be nil to disable debug HTTP.
func (s *service) run(ctx context.Context, grpcLis, debugLis net.Listener, autoStart bool) error {
	srv := transport.NewServer(s.publisher, s.session, config.NewApplier(s.tuning), s.probe)
	if err := s.publisher.Serve(grpcLis, srv); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if debugLis != nil {
		httpSrv := &http.Server{Handler: s.mux}
		g.Go(func() error {
			log.Printf("debug HTTP listening on %s", debugLis.Addr())
			if err := httpSrv.Serve(debugLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug HTTP: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if autoStart {
		info, err := s.session.Start(ctx)
		if err != nil {
			log.Printf("autostart failed: %v", err)
		} else {
			log.Printf("scan %s started on %s", info.ID, info.Platform)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		if s.session.Running() {
			sum, err := s.session.Stop()
			log.Printf("scan %s stopped: %d frames, %d emitted", sum.ID, sum.Frames, sum.Emitted)
			if err != nil {
				log.Printf("source stop: %v", err)
			}
		}
		s.publisher.Stop()
		return nil
	})

	return g.Wait()
}

func (s *service) close() {
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func setLogWriters(diag, trace bool) {
	diagW, traceW := io.Discard, io.Discard
	if diag {
		diagW = os.Stderr
	}
	if trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stdout, diagW, traceW)
	session.SetLogWriters(os.Stdout, diagW, traceW)
}

func runServe(args []string) error {
	o, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	setLogWriters(o.diag, o.trace)

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, o)
	if err != nil {
		return err
	}
	defer svc.close()

	grpcLis, err := net.Listen("tcp", svc.publisher.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	debugAddr := cfg.GetDebugAddr()
	if o.debug != "" {
		debugAddr = o.debug
	}
	var debugLis net.Listener
	if debugAddr != "" {
		if debugLis, err = net.Listen("tcp", debugAddr); err != nil {
			grpcLis.Close()
			return fmt.Errorf("debug listen: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("%s starting", version.String())
	return svc.run(ctx, grpcLis, debugLis, o.autoStart)
}
