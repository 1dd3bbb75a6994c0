package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/config"
	mydb "github.com/yumyai/bgcnet/pkg/db"
	"github.com/yumyai/bgcnet/pkg/pipeline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {

	VERSION := "0.1.0"

	// Try load env, before flags so BGCNET_* defaults pick it up
	dotenvErr := godotenv.Load()

	fs := config.NewFlagSet("bgcnet")
	opts, err := config.ParseArgs(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		// The flag package reports its own parse errors, cutoff errors are ours.
		var argErr *config.InvalidArgumentError
		if errors.As(err, &argErr) {
			fmt.Fprintln(os.Stderr, "bgcnet:", err)
		}
		os.Exit(2)
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "bgcnet:", err)
		fs.Usage()
		os.Exit(2)
	}

	work, err := mydb.NewWorkDir(opts.OutputDir, opts.DomainsFolder)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bgcnet:", err)
		os.Exit(2)
	}
	if err := work.Prepare(); err != nil {
		fmt.Fprintln(os.Stderr, "bgcnet:", err)
		os.Exit(2)
	}

	// Establish logger, mirrored into the output folder
	LOG_LEVEL := zapcore.InfoLevel
	if opts.Verbose {
		LOG_LEVEL = zapcore.DebugLevel
	}
	logfile := opts.LogFile
	if logfile == "" {
		logfile = path.Join(opts.OutputDir, "bgcnet_"+time.Now().Format("20060102_150405")+".log")
	}
	if err := logger.InitLoggerWithFile(LOG_LEVEL, logfile); err != nil {
		panic(err)
	}

	defer logger.Sync() // Make sure that the buffered is flushed.

	if dotenvErr != nil {
		logger.Warn("No .env found, using local environment")
	}
	if !opts.WeightsSumToOne() {
		logger.Warn("Distance weights do not sum to 1",
			zap.Float64("jaccardw", opts.JaccardWeight),
			zap.Float64("ddsw", opts.DDSWeight),
			zap.Float64("gkw", opts.GKWeight))
	}

	logger.Info("Start:", zap.String("Version", VERSION))
	logger.Info("Run setup",
		zap.String("input", opts.InputDir),
		zap.String("output", opts.OutputDir),
		zap.String("mode", opts.Mode),
		zap.Int("cores", opts.Cores))

	dbpath := opts.DBFile
	if dbpath == "" {
		dbpath = work.DBFile()
	}
	store, err := mydb.OpenStore(dbpath)
	if err != nil {
		logger.Error("Cannot open results database:", zap.String("error message", err.Error()))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Open database on", zap.String("DB_LOC", dbpath))

	ctx := context.Background()
	run_id := "run-" + uuid.New().String()
	if err := store.CreateRun(ctx, run_id, opts.Mode, opts.DistanceConfig()); err != nil {
		logger.Error("Cannot register run:", zap.String("error message", err.Error()))
		logger.Sync()
		store.Close()
		os.Exit(1)
	}

	if err := pipeline.New(opts, work, store, run_id).Run(ctx); err != nil {
		logger.Error("Run failed:", zap.String("run", run_id), zap.String("error message", err.Error()))
		logger.Sync()
		store.Close()
		os.Exit(1)
	}

	logger.Info("Run finished", zap.String("run", run_id), zap.String("output", opts.OutputDir))
	store.Close()
}
