// Package main is the Telegram endpoint: it bridges tgbotapi's long-poll
// update stream to the endpoint runtime (C8), turning chat messages into
// Requests and worker Responses back into chat replies.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core"
	"github.com/geoffjay/dispatchd/core/config"
	plog "github.com/geoffjay/dispatchd/core/log"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/endpoint"
	"github.com/geoffjay/dispatchd/store/blob"
	"github.com/geoffjay/dispatchd/store/db"
	"github.com/geoffjay/dispatchd/store/upload"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const provider = "telegram"

func main() {
	configFile := flag.String("config", "", "path to a config file")
	token := flag.String("token", os.Getenv("DISPATCHD_TELEGRAM_TOKEN"), "Telegram bot token")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		log.Info(core.VERSION)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg.Provider = provider
	plog.Initialize(cfg.Log)

	if *token == "" {
		log.Fatal("no Telegram bot token given (set --token or DISPATCHD_TELEGRAM_TOKEN)")
	}

	bot, err := tgbotapi.NewBotAPI(*token)
	if err != nil {
		log.Fatalf("telegram init failed: %v", err)
	}

	var uploader *upload.Uploader
	var database *db.Store
	var blobStore *blob.Store
	if cfg.DB.URL != "" {
		database = db.New(cfg.DB)
		if cfg.Blob.Bucket != "" {
			blobStore = blob.New(cfg.Blob)
		}
		uploader = upload.New(database, blobStore)
	}

	bc := basectx.New(cfg, dbOrNil(database), blobOrNil(blobStore))

	var opts []endpoint.Option
	if uploader != nil {
		opts = append(opts, endpoint.WithUploader(uploader))
	}
	rt := endpoint.New(bc, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Open(ctx); err != nil {
		log.Fatalf("failed to open endpoint runtime: %v", err)
	}

	fields := log.Fields{"role": "endpoint", "provider": provider}
	log.WithFields(fields).Infof("logged in as %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	go pollUpdates(ctx, bot, updates, rt, fields)

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.WithFields(fields).Info("shutdown signal received")
	bot.StopReceivingUpdates()
	cancel()
	if err := rt.Close(context.Background()); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to close endpoint runtime")
	}
	log.WithFields(fields).Info("dispatchd telegram endpoint stopped")
}

func pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, updates tgbotapi.UpdatesChannel, rt *endpoint.Runtime, fields log.Fields) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			handleMessage(ctx, bot, update.Message, rt, fields)
		}
	}
}

func handleMessage(ctx context.Context, bot *tgbotapi.BotAPI, m *tgbotapi.Message, rt *endpoint.Runtime, fields log.Fields) {
	req := msg.Request{
		Provider:  provider,
		MessageID: strconv.Itoa(m.MessageID),
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		Content:   m.Text,
		Username:  m.From.UserName,
		Nickname:  m.From.FirstName,
		CreatedAt: time.Now(),
		MsgUUID:   uuid.NewString(),
	}

	resp, ok := rt.HandleMessage(ctx, req)
	if !ok {
		return
	}

	reply := tgbotapi.NewMessage(m.Chat.ID, resp.ReplyContent())
	reply.ReplyToMessageID = m.MessageID
	if _, err := bot.Send(reply); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to send telegram reply")
	}
}

func dbOrNil(s *db.Store) basectx.DB {
	if s == nil {
		return nil
	}
	return s
}

func blobOrNil(s *blob.Store) basectx.Blob {
	if s == nil {
		return nil
	}
	return s
}
