package app

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/you-humble/camstage/internal/handshake"
	"github.com/you-humble/camstage/internal/infra/catalog"
	"github.com/you-humble/camstage/internal/infra/config"
	"github.com/you-humble/camstage/internal/infra/container"
	"github.com/you-humble/camstage/internal/infra/protocol"
	"github.com/you-humble/camstage/internal/infra/queue"
	blobstore "github.com/you-humble/camstage/internal/infra/store/blob"
	taskstore "github.com/you-humble/camstage/internal/infra/store/task"
	mio "github.com/you-humble/camstage/internal/libs/minio"
	natsq "github.com/you-humble/camstage/internal/libs/nats"
	rediscli "github.com/you-humble/camstage/internal/libs/redis"
	"github.com/you-humble/camstage/internal/links"
	"github.com/you-humble/camstage/internal/metrics"
	"github.com/you-humble/camstage/internal/resolver"
	"github.com/you-humble/camstage/internal/sweeper"
	"github.com/you-humble/camstage/internal/transport"
	"github.com/you-humble/camstage/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
)

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type TaskStore interface {
	usecase.TaskStore
	handshake.TaskStore
	sweeper.Cleaner
}

type BlobStore interface {
	usecase.BlobStore
	sweeper.Cleaner
	Close(ctx context.Context) error
}

type Sweeper interface {
	transport.Sweeper
	StartTicker(ctx context.Context, interval time.Duration)
}

type Catalog interface {
	usecase.Catalog
	resolver.Catalog
}

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	registry *prometheus.Registry

	redis     *redis.Client
	taskStore TaskStore
	blobStore BlobStore

	catalog   Catalog
	links     *links.Links
	codec     protocol.JSONCodec
	converter usecase.Converter
	grpcConn  *grpc.ClientConn

	natsConn *nats.Conn
	js       nats.JetStreamContext

	resolver  handshake.Resolver
	handshake transport.Handshake
	usecase   transport.Usecase
	sweeper   Sweeper

	handler transport.Handler
	router  Router
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{
		cfgPath: cfgPath,
		codec:   protocol.NewJSONCodec(),
	}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(di.cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(di.logger)
	}

	return di.logger
}

func (di *dependencyInjector) Registry() *prometheus.Registry {
	if di.registry == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics.MustRegister(reg)
		di.registry = reg
	}
	return di.registry
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			User:     cfg.User,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("TaskStore redis: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) TaskStore {
	if di.taskStore == nil {
		switch di.Config().TaskStore {
		case config.TaskStoreMemory:
			di.taskStore = taskstore.NewMemoryTaskStore()
			di.Logger().Warn("using in-memory task store, tasks are not shared between replicas")
		default:
			di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx))
		}
	}
	return di.taskStore
}

func (di *dependencyInjector) BlobStore(ctx context.Context) BlobStore {
	if di.blobStore == nil {
		cfg := di.Config()

		local, err := blobstore.NewLocalStore(cfg.BaseDir)
		if err != nil {
			log.Fatalf("BlobStore local: %+v", err)
		}
		di.Logger().Info("initialized local blob store", slog.String("base_dir", cfg.BaseDir))

		if cfg.MinIO.Endpoint == "" {
			di.blobStore = blobstore.NewLocalOnly(local)
			return di.blobStore
		}

		remote, err := blobstore.NewMinIOStore(ctx, mio.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
			BasePath:        "blobs",
		})
		if err != nil {
			log.Fatalf("BlobStore minio: %+v", err)
		}
		di.Logger().Info(
			"initialized MinIO blob store",
			slog.String("endpoint", cfg.MinIO.Endpoint),
			slog.String("bucket", cfg.MinIO.Bucket),
		)

		di.blobStore = blobstore.NewAsyncStore(
			ctx, local, remote,
			cfg.QueueCapacity, cfg.PoolSize, cfg.MinIO.MaxRetries,
		)
		di.Logger().Info(
			"using async blob store (local + MinIO)",
			slog.Int("queue_size", cfg.QueueCapacity),
			slog.Int("worker_num", cfg.PoolSize),
			slog.Int("max_retries", cfg.MinIO.MaxRetries),
		)
	}

	return di.blobStore
}

func (di *dependencyInjector) Catalog() Catalog {
	if di.catalog == nil {
		client := &http.Client{Timeout: di.Config().Converter.Timeout}
		c, err := catalog.Load(di.Config().CatalogPath, client)
		if err != nil {
			log.Fatalf("Catalog: %+v", err)
		}
		di.catalog = c
	}
	return di.catalog
}

func (di *dependencyInjector) Links() *links.Links {
	if di.links == nil {
		l, err := links.New(di.Config().BaseURL)
		if err != nil {
			log.Fatalf("Links: %+v", err)
		}
		di.links = l
	}
	return di.links
}

func (di *dependencyInjector) GRPCConnect() *grpc.ClientConn {
	if di.grpcConn == nil {
		cfg := di.Config().Converter
		conn, err := container.NewConnection(cfg.Addr, cfg.MaxMessageMb<<20)
		if err != nil {
			log.Fatalf("Converter gRPC: %+v", err)
		}
		di.grpcConn = conn
	}
	return di.grpcConn
}

func (di *dependencyInjector) Converter() usecase.Converter {
	if di.converter == nil {
		cfg := di.Config().Converter
		if cfg.Addr == "" {
			di.converter = container.NewSPKPacker(cfg.MaxParallel)
			di.Logger().Info("converting packages in process")
		} else {
			di.converter = container.NewClient(di.GRPCConnect())
			di.Logger().Info("converting packages remotely", slog.String("addr", cfg.Addr))
		}
	}
	return di.converter
}

func (di *dependencyInjector) NATSConn() *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.QueueName,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream() nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConn(), queue.StreamConfig(cfg.NATS.Subject, cfg.Retention))
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}
		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Resolver() handshake.Resolver {
	if di.resolver == nil {
		di.resolver = resolver.New(di.Catalog(), di.Links())
	}
	return di.resolver
}

func (di *dependencyInjector) Handshake(ctx context.Context) transport.Handshake {
	if di.handshake == nil {
		di.handshake = handshake.New(
			di.TaskStore(ctx),
			di.Resolver(),
			di.codec,
			protocol.NewXPDBuilder(di.Config().ServiceName),
			di.Links(),
		)
	}
	return di.handshake
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.Config().Converter.Timeout,
			di.TaskStore(ctx),
			di.BlobStore(ctx),
			di.Catalog(),
			di.Converter(),
			di.codec,
		)
	}
	return di.usecase
}

func (di *dependencyInjector) Sweeper(ctx context.Context) Sweeper {
	if di.sweeper == nil {
		di.sweeper = sweeper.New(
			di.Config().Retention,
			di.TaskStore(ctx),
			di.BlobStore(ctx),
		)
	}
	return di.sweeper
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(
			di.Config().MaxUploadBytesMb,
			di.Usecase(ctx),
			di.Handshake(ctx),
			di.Sweeper(ctx),
			di.Links(),
		)
	}
	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		metricsHandler := promhttp.HandlerFor(di.Registry(), promhttp.HandlerOpts{})
		di.router = transport.NewRouter(di.Handler(ctx), metricsHandler)
	}
	return di.router
}

// Close flushes the replication queue and releases connections.
func (di *dependencyInjector) Close(ctx context.Context) {
	if di.blobStore != nil {
		if err := di.blobStore.Close(ctx); err != nil {
			slog.Warn("blob store close", slog.String("error", err.Error()))
		}
	}
	if di.grpcConn != nil {
		closeLogged("grpc", di.grpcConn)
	}
	if di.redis != nil {
		closeLogged("redis", di.redis)
	}
	if di.natsConn != nil {
		di.natsConn.Close()
	}
}

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close", slog.String("name", name), slog.String("error", err.Error()))
	}
}
