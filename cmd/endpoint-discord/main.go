// Package main is the Discord endpoint: it bridges discordgo's gateway
// session to the endpoint runtime (C8), turning channel messages into
// Requests and worker Responses back into channel replies.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
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

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const provider = "discord"

func main() {
	configFile := flag.String("config", "", "path to a config file")
	token := flag.String("token", os.Getenv("DISPATCHD_DISCORD_TOKEN"), "Discord bot token")
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
		log.Fatal("no Discord bot token given (set --token or DISPATCHD_DISCORD_TOKEN)")
	}

	session, err := discordgo.New("Bot " + *token)
	if err != nil {
		log.Fatalf("discord init failed: %v", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

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

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.Bot {
			return
		}
		handleMessage(ctx, s, m, rt, fields)
	})

	if err := session.Open(); err != nil {
		log.Fatalf("failed to open discord session: %v", err)
	}

	log.WithFields(fields).Info("dispatchd discord endpoint starting")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.WithFields(fields).Info("shutdown signal received")
	cancel()
	if err := session.Close(); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to close discord session")
	}
	if err := rt.Close(context.Background()); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to close endpoint runtime")
	}
	log.WithFields(fields).Info("dispatchd discord endpoint stopped")
}

func handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, rt *endpoint.Runtime, fields log.Fields) {
	nickname := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		nickname = m.Member.Nick
	}

	req := msg.Request{
		Provider:  provider,
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Username:  m.Author.Username,
		Nickname:  nickname,
		CreatedAt: time.Now(),
		MsgUUID:   uuid.NewString(),
	}

	resp, ok := rt.HandleMessage(ctx, req)
	if !ok {
		return
	}

	if _, err := s.ChannelMessageSendReply(m.ChannelID, resp.ReplyContent(), m.Reference()); err != nil {
		log.WithFields(fields).WithError(err).Error("failed to send discord reply")
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
