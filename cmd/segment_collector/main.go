package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avi18971911/Tracelane/internal/admin/router"
	"github.com/Avi18971911/Tracelane/internal/alarm"
	"github.com/Avi18971911/Tracelane/internal/analysis"
	"github.com/Avi18971911/Tracelane/internal/config"
	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/bootstrapper"
	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/client"
	"github.com/Avi18971911/Tracelane/internal/db/write_buffer"
	"github.com/Avi18971911/Tracelane/internal/event_bus"
	"github.com/Avi18971911/Tracelane/internal/meter"
	traceServer "github.com/Avi18971911/Tracelane/internal/otel_server/trace/server"
	"github.com/Avi18971911/Tracelane/internal/registry"
	"github.com/Avi18971911/Tracelane/internal/segment/buffer"
	"github.com/Avi18971911/Tracelane/internal/segment/codec"
	"github.com/Avi18971911/Tracelane/internal/segment/exchange"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/parser"
	"github.com/Avi18971911/Tracelane/internal/storage"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/asaskevich/EventBus"
	"github.com/dgraph-io/ristretto"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const shutdownTimeOut = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	var logger *zap.Logger
	if cfg.Logging.Development {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()
	if err != nil {
		logger.Warn("Falling back to default configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}
	usesElasticsearch := cfg.Elasticsearch.Registry == "elasticsearch" || cfg.Elasticsearch.Storage == "elasticsearch"
	if usesElasticsearch {
		bs := bootstrapper.NewBootstrapper(es, logger)
		if err = bs.BootstrapElasticsearch(ctx); err != nil {
			logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
		}
	}
	ac := client.NewTracelaneClientImpl(es, client.Async)

	var reg registry.Registry
	if cfg.Elasticsearch.Registry == "elasticsearch" {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.Elasticsearch.CacheEntries * 10,
			MaxCost:     cfg.Elasticsearch.CacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			logger.Fatal("Failed to create registry cache", zap.Error(err))
		}
		// registration must be visible to the next lookup
		reg = registry.NewElasticsearchRegistry(client.NewTracelaneClientImpl(es, client.Wait), cache, logger)
	} else {
		reg = registry.NewMemoryRegistry()
	}

	var dao meter.MetricsDAO
	if cfg.Elasticsearch.Storage == "elasticsearch" {
		dao = storage.NewElasticsearchMetricsDAO(ac, logger)
	} else {
		dao = storage.NewMemoryMetricsDAO()
	}

	downsamplings := make([]meter.Downsampling, 0, len(cfg.Meter.Downsamplings))
	for _, d := range cfg.Meter.Downsamplings {
		downsampling, err := meter.ParseDownsampling(d)
		if err != nil {
			logger.Fatal("Invalid meter configuration", zap.Error(err))
		}
		downsamplings = append(downsamplings, downsampling)
	}

	bus := event_bus.NewBus[meter.PersistedRow](EventBus.New(), logger)
	meterSystem := meter.NewMeterSystem(
		dao,
		bus,
		meter.Config{Shards: cfg.Meter.Shards, Downsamplings: downsamplings},
		metrics,
		logger,
	)
	if err = analysis.CreateMetrics(meterSystem); err != nil {
		logger.Fatal("Failed to create metrics", zap.Error(err))
	}

	var rules []alarm.Rule
	if cfg.Alarm.RulesPath != "" {
		if rules, err = alarm.LoadRules(cfg.Alarm.RulesPath); err != nil {
			logger.Fatal("Failed to load alarm rules", zap.Error(err))
		}
	}
	alarmService := alarm.NewAlarmService(rules, meterSystem, metrics, logger)
	if err = alarmService.CreateMetrics(); err != nil {
		logger.Fatal("Failed to create alarm metric", zap.Error(err))
	}
	meterSystem.CloseCreation()
	if err = bus.Subscribe(meter.MetricsPersistedTopic, alarmService.HandlePersisted, true); err != nil {
		logger.Fatal("Failed to subscribe alarm service", zap.Error(err))
	}

	factories := []listener.Factory{
		analysis.NewEndpointMetricsListenerFactory(meterSystem),
		analysis.NewServiceRelationListenerFactory(meterSystem),
		analysis.NewServiceInstanceListenerFactory(meterSystem),
	}
	var segmentRecordBuffer *write_buffer.DatabaseWriteBufferImpl[storage.SegmentRecord]
	if cfg.Elasticsearch.Storage == "elasticsearch" {
		segmentRecordBuffer = write_buffer.NewDatabaseWriteBufferImpl[storage.SegmentRecord](
			ac,
			bootstrapper.SegmentIndexName,
			logger,
		)
		factories = append(factories, analysis.NewSegmentRecordListenerFactory(segmentRecordBuffer))
	}
	manager := listener.NewManager(metrics, logger, factories...)

	retryBuffer, err := buffer.Open(
		buffer.Config{
			Directory:    cfg.Buffer.Directory,
			QueueSize:    cfg.Buffer.QueueSize,
			ReadInterval: cfg.Buffer.ReadInterval,
			ReadBatch:    cfg.Buffer.ReadBatch,
		},
		metrics,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to open retry buffer", zap.Error(err))
	}
	defer func() {
		if err := retryBuffer.Close(); err != nil {
			logger.Error("Failed to close retry buffer", zap.Error(err))
		}
	}()

	segmentParser := parser.NewSegmentParserImpl(
		exchange.NewIDExchangerImpl(reg, logger),
		reg,
		manager,
		retryBuffer,
		metrics,
		logger,
	)
	producer := parser.NewProducer(segmentParser, cfg.Parser.Workers, cfg.Parser.QueueSize, logger)

	grpcListener, err := net.Listen("tcp", cfg.Server.GrpcAddress)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("address", cfg.Server.GrpcAddress), zap.Error(err))
	}
	srv := grpc.NewServer()
	protoTrace.RegisterTraceServiceServer(srv, traceServer.NewTraceServiceServerImpl(logger, producer, codec.CompressionZstd))

	adminServer := &http.Server{
		Addr:              cfg.Server.AdminAddress,
		Handler:           router.CreateRouter(prometheus.DefaultGatherer, retryBuffer, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ingest := stage{
		func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				srv.GracefulStop()
			}()
			logger.Info("gRPC service started, listening for OpenTelemetry traces...", zap.String("address", cfg.Server.GrpcAddress))
			return srv.Serve(grpcListener)
		},
	}
	workers := stage{
		producer.Run,
		func(ctx context.Context) error {
			return retryBuffer.Run(ctx, producer.Call)
		},
	}
	sinks := stage{
		func(ctx context.Context) error {
			if err := meterSystem.Run(ctx, cfg.Meter.FlushInterval); err != nil {
				return err
			}
			// alarms raised by the final flush
			bus.WaitAsync()
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeOut)
			defer cancel()
			_, err := meterSystem.Flush(flushCtx, true)
			return errors.Join(err, bus.Close())
		},
	}
	if segmentRecordBuffer != nil {
		sinks = append(sinks, func(ctx context.Context) error {
			return segmentRecordBuffer.Run(ctx, cfg.Elasticsearch.WriteFlush)
		})
	}
	admin := stage{
		func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeOut)
				defer cancel()
				if err := adminServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("Failed to shut down admin server", zap.Error(err))
				}
			}()
			logger.Info("Admin server started", zap.String("address", cfg.Server.AdminAddress))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	// ingest stops first so every accepted envelope is parsed, and parsed samples are flushed
	if err = runStages(ctx, ingest, workers, sinks, admin); err != nil {
		logger.Error("Segment collector stopped with error", zap.Error(err))
	}
	logger.Info("Segment collector stopped")
}
