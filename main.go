package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	appcmd "github.com/eske/multivec-go/cmd"
	"github.com/eske/multivec-go/multivec"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	logFormat := getenvDefault("MULTIVEC_LOG_FORMAT", "text")
	logger := newLogger(logFormat)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "train":
		runTrain(logger, os.Args[2:])
	case "serve":
		runServe(logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage:
  multivec train -train CORPUS [options]   train a model and export vectors
  multivec serve                           serve loaded models over HTTP (MULTIVEC_* env)

run "multivec train -h" for training options.
`)
}

// runTrain drives one training run from word2vec-lineage flags: build the
// vocabulary, train, then write whichever outputs were requested.
func runTrain(logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)

	corpus := fs.String("train", "", "training corpus, one sentence per line (required)")
	output := fs.String("output", "", "write word vectors to this file")
	binary := fs.Bool("binary", false, "write -output in word2vec binary format instead of text")
	saveModel := fs.String("save-model", "", "write the full model container to this file")
	sentOutput := fs.String("sent-vectors", "", "write per-sentence vectors to this file (requires -sent-vector)")
	normalize := fs.Bool("normalize", false, "length-normalize exported vectors")

	size := fs.Int("size", 100, "embedding dimension")
	window := fs.Int("window", 5, "max context window size")
	sample := fs.Float64("sample", 1e-3, "frequent-word subsampling threshold (0 disables)")
	hs := fs.Bool("hs", false, "use hierarchical softmax")
	negative := fs.Int("negative", 5, "number of negative samples (0 disables)")
	threads := fs.Int("threads", 4, "number of training workers")
	iter := fs.Int("iter", 5, "training epochs")
	minCount := fs.Int("min-count", 5, "discard words seen fewer times than this")
	alpha := fs.Float64("alpha", 0.05, "initial learning rate")
	sg := fs.Bool("sg", false, "use skip-gram instead of CBOW")
	sentVector := fs.Bool("sent-vector", false, "train per-sentence paragraph vectors")
	noAverage := fs.Bool("no-average", false, "sum CBOW context vectors instead of averaging")
	verbose := fs.Int("verbose", 1, "verbosity (0 silent)")

	consistency := fs.String("consistency", "hogwild", "weight update policy: hogwild or locked")
	seed := fs.Int64("seed", 0, "RNG seed (0 picks one from the clock)")

	publishID := fs.String("publish", "", "publish the trained model to the blob store under this model ID")
	blobRoot := fs.String("blob-root", "./.multivec/models", "local blob store root for -publish")

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *corpus == "" {
		fmt.Fprintln(os.Stderr, "-train is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg := multivec.TrainingConfig{
		Dimension:           *size,
		MinCount:            *minCount,
		WindowSize:          *window,
		Threads:             *threads,
		Iterations:          *iter,
		Alpha:               float32(*alpha),
		Subsampling:         float32(*sample),
		HierarchicalSoftmax: *hs,
		Negative:            *negative,
		SkipGram:            *sg,
		SentVector:          *sentVector,
		NoAverage:           *noAverage,
		Verbose:             *verbose,
	}

	mode, err := multivec.ParseConsistencyMode(*consistency)
	if err != nil {
		fatal(logger, "parse consistency mode", err)
	}

	opts := []multivec.ModelOption{multivec.WithConsistencyMode(mode)}
	if *seed != 0 {
		opts = append(opts, multivec.WithSeed(*seed))
	}
	if *verbose > 0 {
		opts = append(opts, multivec.WithTrainObserver(progressLogger(logger)))
	}

	model, err := multivec.NewModel(cfg, opts...)
	if err != nil {
		fatal(logger, "create model", err)
	}

	start := time.Now()
	if err := model.Train(context.Background(), *corpus); err != nil {
		fatal(logger, "train", err)
	}
	logger.Info("training finished",
		"corpus", *corpus,
		"vocab_size", model.VocabSize(),
		"words", model.TrainingWords(),
		"lines", model.TrainingLines(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if *output != "" {
		save := model.SaveVectorsText
		if *binary {
			save = model.SaveVectorsBin
		}
		if err := save(*output, multivec.PolicyInput, *normalize); err != nil {
			fatal(logger, "save vectors", err)
		}
		logger.Info("vectors written", "path", *output, "binary", *binary)
	}
	if *saveModel != "" {
		if err := model.Save(*saveModel); err != nil {
			fatal(logger, "save model", err)
		}
		logger.Info("model written", "path", *saveModel)
	}
	if *sentOutput != "" {
		if err := model.SaveSentenceVectors(*sentOutput, *normalize); err != nil {
			fatal(logger, "save sentence vectors", err)
		}
		logger.Info("sentence vectors written", "path", *sentOutput)
	}

	if *publishID != "" {
		store := multivec.NewModelStore(&multivec.LocalBlobStore{Root: *blobRoot})
		manifest, err := store.Publish(context.Background(), *publishID, model,
			multivec.WithVectorsArtifact(multivec.PolicyInput, *normalize))
		if err != nil {
			fatal(logger, "publish model", err)
		}
		logger.Info("model published", "model_id", *publishID, "run_id", manifest.RunID, "blob_root", *blobRoot)
	}
}

// progressLogger logs training progress at roughly 1% steps. Snapshots
// arrive from worker goroutines, hence the atomic dedupe.
func progressLogger(logger *slog.Logger) multivec.TrainObserver {
	var lastPercent atomic.Int64
	lastPercent.Store(-1)
	return multivec.TrainObserverFunc(func(p multivec.TrainProgress) {
		percent := int64(p.Fraction() * 100)
		if lastPercent.Swap(percent) == percent {
			return
		}
		logger.Info("training progress",
			"percent", percent,
			"words", p.WordsProcessed,
			"alpha", p.Alpha,
		)
	})
}

// runServe boots the query API over models loaded from a local directory,
// with optional S3 artifact storage, Mongo manifest registry and Redis
// publish leases wired in by env.
func runServe(logger *slog.Logger) {
	modelDir := getenvDefault("MULTIVEC_MODEL_DIR", "./.multivec/models")
	blobRoot := getenvDefault("MULTIVEC_BLOB_ROOT", "./.multivec/blobs")
	addr := getenvDefault("MULTIVEC_HTTP_ADDR", "127.0.0.1:8080")
	storeEnabled := getenvBoolDefault(logger, "MULTIVEC_STORE_ENABLED", false)

	var catalog *multivec.ModelCatalog
	if storeEnabled {
		store := buildModelStore(logger, blobRoot)
		catalog = multivec.NewModelCatalogWithStore(store)
	} else {
		catalog = multivec.NewModelCatalog()
	}

	if info, err := os.Stat(modelDir); err == nil && info.IsDir() {
		n, err := catalog.LoadDir(modelDir)
		if err != nil {
			fatal(logger, "load model dir", err)
		}
		logger.Info("models loaded", "dir", modelDir, "count", n)
	} else {
		logger.Info("model dir not found, starting empty", "dir", modelDir)
	}

	appCfg := appcmd.AppConfig{
		Address:           addr,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Logger:            logger,
	}
	app := appcmd.NewApp(catalog, appCfg)

	if err := app.Start(); err != nil {
		fatal(logger, "start app", err)
	}
	logger.Info("multivec listening", "address", app.Address(), "models", catalog.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		if err := app.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := app.Wait(); err != nil {
		fatal(logger, "app exited with error", err)
	}
}

// buildModelStore assembles the ModelStore from env: S3 or local blobs,
// Mongo or blob-backed manifests, Redis or in-memory publish leases.
func buildModelStore(logger *slog.Logger, blobRoot string) *multivec.ModelStore {
	var blobStore multivec.BlobStore
	if bucket := os.Getenv("MULTIVEC_S3_BUCKET"); bucket != "" {
		prefix := getenvDefault("MULTIVEC_S3_PREFIX", "")
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			fatal(logger, "load aws config", err)
		}
		blobStore = multivec.NewS3BlobStore(s3.NewFromConfig(awsCfg), bucket, prefix)
		logger.Info("configured s3 blob store", "bucket", bucket, "prefix", prefix)
	} else {
		blobStore = &multivec.LocalBlobStore{Root: blobRoot}
		logger.Info("configured local blob store", "root", blobRoot)
	}

	var storeOpts []multivec.ModelStoreOption

	// Manifest store: MongoDB or blob-backed (default).
	if mongoURI := os.Getenv("MULTIVEC_MANIFEST_MONGO_URI"); mongoURI != "" {
		mongoDB := getenvDefault("MULTIVEC_MANIFEST_MONGO_DB", "multivec")
		mongoColl := getenvDefault("MULTIVEC_MANIFEST_MONGO_COLLECTION", "manifests")

		mongoClient, err := mongo.Connect(mongooptions.Client().ApplyURI(mongoURI))
		if err != nil {
			fatal(logger, "mongo connect", err)
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		if err := mongoClient.Ping(pingCtx, nil); err != nil {
			fatal(logger, "mongo ping", err)
		}
		coll := mongoClient.Database(mongoDB).Collection(mongoColl)
		storeOpts = append(storeOpts, multivec.WithManifestStore(multivec.NewMongoManifestStore(coll)))
		logger.Info("configured mongo manifest store", "db", mongoDB, "collection", mongoColl)
	}

	if redisAddr := os.Getenv("MULTIVEC_LEASE_REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		leaseMgr, err := multivec.NewRedisPublishLeaseManager(client, "multivec:lease:")
		if err != nil {
			fatal(logger, "redis lease manager", err)
		}
		storeOpts = append(storeOpts, multivec.WithPublishLeaseManager(leaseMgr))
		leaseTTL := getenvDurationDefault(logger, "MULTIVEC_LEASE_TTL", 30*time.Second)
		storeOpts = append(storeOpts, multivec.WithPublishLeaseTTL(leaseTTL))
		logger.Info("configured redis publish leases", "addr", redisAddr, "ttl", leaseTTL)
	}

	return multivec.NewModelStore(blobStore, storeOpts...)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func getenvDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvDurationDefault(logger *slog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid duration env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return d
}

func getenvBoolDefault(logger *slog.Logger, key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid boolean env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return b
}
