package main

import (
	"context"
	"flag"
	"fmt"

	"RProject/global/config"
	"RProject/logger"
	"RProject/middleware"
	midsec "RProject/middleware/security"
	relayseq "RProject/module/relay/seq"
	relaysvc "RProject/module/relay/service"
	relaystore "RProject/module/relay/store"
	kafka "RProject/service/dispatcher/kafka"
	"RProject/service/mgo"
	"RProject/service/natsx"
	redis "RProject/service/storage/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	defer logger.Sync()

	if *configPath != "" {
		if err := config.Load(*configPath); err != nil {
			logger.Errorf("[main] load config: %v", err)
			return
		}
	}
	ctx := context.Background()
	if err := config.ConfigAll(ctx); err != nil {
		logger.Errorf("[main] init backends: %v", err)
		return
	}
	defer redis.CloseRedis()

	store := relaystore.NewStore(mgo.GetDB())
	alloc := &relayseq.Allocator{
		Rdb: redis.GetRedis(),
		DAO: &relayseq.DAO{DB: mgo.GetDB()},
	}

	var dispatcher relaysvc.Dispatcher
	if len(config.Global.KafkaBrokers) > 0 {
		d, err := kafka.NewDispatcher(&kafka.Config{
			Brokers:       config.Global.KafkaBrokers,
			AcceptedTopic: config.Global.AcceptedTopic,
		})
		if err != nil {
			logger.Warnf("[main] kafka unavailable, dispatch disabled: %v", err)
		} else {
			dispatcher = d
			defer d.Close()
		}
	}

	var waker relaysvc.Waker
	if config.Global.NatsURL != "" {
		w, err := natsx.NewWaker(config.Global.NatsURL, config.Global.WakeSubject)
		if err != nil {
			logger.Warnf("[main] nats unavailable, wake disabled: %v", err)
		} else {
			waker = w
			defer w.Close()
		}
	}

	svc := relaysvc.NewService(store, alloc)
	svc.Dispatcher = dispatcher
	svc.Waker = waker

	auth := midsec.DefaultOptions(config.GetJwtSecret())
	opt := middleware.RouteOpt{IsAuth: true, Auth: auth}

	r := gin.New()
	r.Use(gin.Recovery())
	middleware.POST(r, "/relay/send", svc.HandleAccept, opt)
	middleware.GET(r, "/relay/pull", svc.HandlePull, opt)
	middleware.GET(r, "/relay/repair", svc.HandleRange, opt)
	middleware.POST(r, "/relay/receipt", svc.HandleReceipt, opt)

	addr := fmt.Sprintf(":%d", config.Global.Port)
	logger.Infof("[main] relay listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("[main] server stopped: %v", err)
	}
}
