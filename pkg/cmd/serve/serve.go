package serve

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/songforge/songforge/pkg/api"
	"github.com/songforge/songforge/pkg/ffmpeg"
	"github.com/songforge/songforge/pkg/filestore"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/lyricsai"
	"github.com/songforge/songforge/pkg/music"
	"github.com/songforge/songforge/pkg/pipeline"
	"github.com/songforge/songforge/pkg/prompt"
	"github.com/songforge/songforge/pkg/sound"
	"github.com/songforge/songforge/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string

	Addr        string
	Credentials map[string]string

	MusicProvider string
	MusicKey      string
	KitsKey       string
	OpenAIKey     string

	FFmpegBin  string
	FFprobeBin string

	Concurrency int
	QueueSize   int
	Wait        time.Duration

	TargetDuration     time.Duration
	VocalsVolume       float64
	InstrumentalVolume float64
	ReverbAmount       float64
	CreditCost         int
	InitialCredits     int

	MinSampleSeconds float64
	MaxSampleSeconds float64
}

// Run starts the full service: store, generation worker and HTTP API.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("serve: started")
	defer log.Println("serve: ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("serve: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("serve: couldn't start orm store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("serve: couldn't migrate orm store: %w", err)
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("serve: couldn't create file storage: %w", err)
	}

	// A music_provider setting row overrides the configured vendor so
	// operators can switch without a restart rollout.
	musicProvider := cfg.MusicProvider
	if setting, err := store.GetSetting(ctx, "music_provider"); err == nil && setting.Value != "" {
		musicProvider = setting.Value
	}

	generator, err := music.New(&music.Config{
		Type:   musicProvider,
		APIKey: cfg.MusicKey,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("serve: couldn't create music generator: %w", err)
	}

	media, err := ffmpeg.New(cfg.FFmpegBin, cfg.FFprobeBin)
	if err != nil {
		return fmt.Errorf("serve: couldn't create media tool: %w", err)
	}

	var voices *kitsai.Client
	if cfg.KitsKey != "" {
		voices, err = kitsai.New(&kitsai.Config{
			APIKey: cfg.KitsKey,
			Wait:   cfg.Wait,
			Debug:  cfg.Debug,
		})
		if err != nil {
			return fmt.Errorf("serve: couldn't create voice client: %w", err)
		}
	}

	var lyrics *lyricsai.Client
	if cfg.OpenAIKey != "" {
		lyrics, err = lyricsai.New(&lyricsai.Config{
			Token: cfg.OpenAIKey,
			Debug: cfg.Debug,
		})
		if err != nil {
			return fmt.Errorf("serve: couldn't create lyrics client: %w", err)
		}
	}

	var converter pipeline.Converter
	if voices != nil {
		converter = voices
	}
	pipe := pipeline.New(store, generator, converter, media, fs, prompt.NewComposer(store), pipeline.Config{
		TargetDuration:     cfg.TargetDuration,
		CreditCost:         cfg.CreditCost,
		VocalsVolume:       cfg.VocalsVolume,
		InstrumentalVolume: cfg.InstrumentalVolume,
		ReverbAmount:       cfg.ReverbAmount,
		Debug:              cfg.Debug,
	})
	worker := pipeline.NewWorker(pipe, cfg.Concurrency, cfg.QueueSize)

	if err := reconcile(ctx, store, worker); err != nil {
		return err
	}

	minSample := cfg.MinSampleSeconds
	if minSample == 0 {
		minSample = 10
	}
	maxSample := cfg.MaxSampleSeconds
	if maxSample == 0 {
		maxSample = 300
	}
	validator := func(data []byte) error {
		return sound.ValidateSample(data, minSample, maxSample)
	}

	var lyricsWriter api.LyricsWriter
	if lyrics != nil {
		lyricsWriter = lyrics
	}
	var registrar api.VoiceRegistrar
	if voices != nil {
		registrar = voices
	}
	server := api.New(store, worker, lyricsWriter, registrar, validator, api.Config{
		Debug:          cfg.Debug,
		Addr:           cfg.Addr,
		Credentials:    cfg.Credentials,
		InitialCredits: cfg.InitialCredits,
		CreditCost:     cfg.CreditCost,
	})

	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Printf("serve: worker stopped: %v\n", err)
		}
	}()

	return server.Serve(ctx)
}

// reconcile repairs song state after a restart: runs interrupted
// mid-flight are failed, still-pending rows go back on the queue.
func reconcile(ctx context.Context, store *storage.Store, worker *pipeline.Worker) error {
	stuck, err := store.ListSongs(ctx, 1, 1000, "created_at asc",
		storage.Where("status IN (?)", []storage.SongStatus{
			storage.SongGeneratingMusic,
			storage.SongConvertingVoice,
			storage.SongMerging,
		}))
	if err != nil {
		return fmt.Errorf("serve: couldn't list interrupted songs: %w", err)
	}
	for _, song := range stuck {
		song.Status = storage.SongFailed
		song.ErrorMessage = "interrupted by restart"
		if err := store.SetSong(ctx, song); err != nil {
			return fmt.Errorf("serve: couldn't fail interrupted song %s: %w", song.ID, err)
		}
	}

	pending, err := store.ListSongs(ctx, 1, 1000, "created_at asc",
		storage.Where("status = ?", storage.SongPending))
	if err != nil {
		return fmt.Errorf("serve: couldn't list pending songs: %w", err)
	}
	for _, song := range pending {
		if err := worker.Enqueue(song.ID); err != nil {
			log.Printf("serve: couldn't re-enqueue song %s: %v\n", song.ID, err)
			break
		}
	}
	if len(stuck) > 0 || len(pending) > 0 {
		log.Printf("serve: recovered %d interrupted and %d pending songs\n", len(stuck), len(pending))
	}
	return nil
}
