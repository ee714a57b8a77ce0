package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ZXMushroom63/adschat-server/internal/accounts"
	"github.com/ZXMushroom63/adschat-server/internal/attachments"
	"github.com/ZXMushroom63/adschat-server/internal/database"
	"github.com/ZXMushroom63/adschat-server/internal/email"
	"github.com/ZXMushroom63/adschat-server/internal/handlers"
	"github.com/ZXMushroom63/adschat-server/internal/hub"
	"github.com/ZXMushroom63/adschat-server/internal/jwt"
	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
	"github.com/ZXMushroom63/adschat-server/internal/messages"
	"github.com/ZXMushroom63/adschat-server/internal/models"
	"github.com/ZXMushroom63/adschat-server/internal/snowflake"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	level := zap.DebugLevel
	if cfg.LogLevel != "" {
		var err error
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.LogToFile {
		rotator := &lumberjack.Logger{
			Filename:   "app.log",
			MaxSize:    64,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), nil
}

func readConfigFile() (*models.ConfigFile, error) {
	var cfg models.ConfigFile

	configFile, err := os.Open("config.json")
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer sugar.Sync()

	fmt.Println("Connecting to database...")
	db, err := database.Setup(cfg)
	if err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	if cfg.SelfContained {
		fmt.Println("Self contained mode, skipping redis...")
	} else {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
	}

	hub.Setup(sugar, redisClient, cfg.SelfContained)
	keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	err = snowflake.Setup(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	isHttps := (cfg.TlsCert != "" && cfg.TlsKey != "")

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	fullAddress := fmt.Sprintf("%s://%s:%s", httpProtocol, cfg.Address, cfg.Port)

	email.Setup(cfg)
	jwt.Setup(cfg.JwtSecret, isHttps)

	attachments.Setup(sugar, cfg.AttachmentDir, cfg.MaxAttachmentMB<<20)
	messages.Setup(sugar, db, hub.Hub{})
	accounts.Setup(sugar, db, hub.Hub{}, cfg.Development, fullAddress)

	fmt.Printf("Server is running on %s\n", fullAddress)

	err = handlers.Setup(isHttps, cfg, sugar, db)
	if err != nil {
		sugar.Fatal(err)
	}
}
