package main

import (
	"flag"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/car"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/config"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/db"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/logger"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/tracing"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/notification"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/part"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
)

var (
	configPath   = flag.String("config", "configs/car-service.json", "配置文件路径")
	consulCfgKey = flag.String("consul-config-key", "", "从 Consul KV 加载配置的 key（优先于本地文件）")
	consulHost   = flag.String("consul-host", "localhost", "Consul 地址（仅配合 -consul-config-key 使用）")
	consulPort   = flag.Int("consul-port", 8500, "Consul 端口（仅配合 -consul-config-key 使用）")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件
	var (
		cfg *config.Config
		err error
	)
	if *consulCfgKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulHost, *consulPort, *consulCfgKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	err = gormDB.AutoMigrate(
		&user.User{},
		&car.Car{}, &car.CarOwnership{}, &car.TransferLog{},
		&booking.Booking{}, &booking.Job{}, &booking.Quote{}, &booking.Billing{},
		&notification.Notification{},
		&part.Part{}, &part.StockMovement{},
	)
	if err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	carSvc := car.NewService(gormDB, notification.NewStoreEmitter(gormDB), log)

	// 启动统一的 HTTP 服务模板
	if err := httpserver.RunHTTPServer(cfg, log, func(r *gin.Engine) error {
		user.NewHandler(gormDB, cfg.Auth).RegisterRoutes(r)
		car.NewHandler(carSvc).RegisterRoutes(r)
		booking.NewHandler(gormDB).RegisterRoutes(r)
		notification.NewHandler(gormDB).RegisterRoutes(r)
		part.NewHandler(gormDB).RegisterRoutes(r)
		return nil
	}); err != nil {
		log.Fatalf("car-service exited with error: %v", err)
	}
}
