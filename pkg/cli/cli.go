package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/songforge/songforge/pkg/cmd/generate"
	"github.com/songforge/songforge/pkg/cmd/lyrics"
	"github.com/songforge/songforge/pkg/cmd/migrate"
	"github.com/songforge/songforge/pkg/cmd/serve"
	"github.com/songforge/songforge/pkg/cmd/voice"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("songforge", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "songforge [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newServeCommand(),
			newGenerateCommand(),
			newVoiceCommand(),
			newLyricsCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "songforge version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.StringVar(&cfg.DBType, "db-type", "", "db type (local, sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songforge %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SONGFORGE"),
		},
		ShortHelp: fmt.Sprintf("songforge %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &serve.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (local, sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "local", "fs type (local, s3, inline)")
	fs.StringVar(&cfg.FSConn, "fs-conn", ".cache", "path for local, key:secret@bucket.region for s3")

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "admin-creds", nil, "admin credentials (semicolon separated) Example: user1:pass1;user2:pass2")

	fs.StringVar(&cfg.MusicProvider, "music-provider", "elevenlabs", "music provider (elevenlabs, suno)")
	fs.StringVar(&cfg.MusicKey, "music-key", "", "music provider api key")
	fs.StringVar(&cfg.KitsKey, "kits-key", "", "kits.ai api key (optional)")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key for lyrics (optional)")

	fs.StringVar(&cfg.FFmpegBin, "ffmpeg-bin", "", "ffmpeg binary (defaults to PATH lookup)")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe-bin", "", "ffprobe binary (defaults to PATH lookup)")

	fs.IntVar(&cfg.Concurrency, "concurrency", 2, "number of concurrent generations")
	fs.IntVar(&cfg.QueueSize, "queue-size", 32, "maximum queued generations")
	fs.DurationVar(&cfg.Wait, "wait", 1*time.Second, "minimum wait time between vendor calls")

	fs.DurationVar(&cfg.TargetDuration, "duration", 50*time.Second, "target song duration")
	fs.Float64Var(&cfg.VocalsVolume, "vocals-volume", 1.0, "vocals volume in the final mix")
	fs.Float64Var(&cfg.InstrumentalVolume, "instrumental-volume", 0.4, "instrumental volume in the final mix")
	fs.Float64Var(&cfg.ReverbAmount, "reverb", 0.0, "reverb amount for converted vocals (0 to 1)")
	fs.IntVar(&cfg.CreditCost, "credit-cost", 1, "credits debited per song")
	fs.IntVar(&cfg.InitialCredits, "initial-credits", 10, "credits granted to new users")
	fs.Float64Var(&cfg.MinSampleSeconds, "min-sample-seconds", 10, "minimum voice sample duration")
	fs.Float64Var(&cfg.MaxSampleSeconds, "max-sample-seconds", 300, "maximum voice sample duration")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songforge %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SONGFORGE"),
		},
		ShortHelp: fmt.Sprintf("songforge %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return serve.Run(ctx, cfg)
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (local, sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "local", "fs type (local, s3, inline)")
	fs.StringVar(&cfg.FSConn, "fs-conn", ".cache", "path for local, key:secret@bucket.region for s3")

	fs.StringVar(&cfg.MusicProvider, "music-provider", "elevenlabs", "music provider (elevenlabs, suno)")
	fs.StringVar(&cfg.MusicKey, "music-key", "", "music provider api key")
	fs.StringVar(&cfg.KitsKey, "kits-key", "", "kits.ai api key (optional)")

	fs.StringVar(&cfg.FFmpegBin, "ffmpeg-bin", "", "ffmpeg binary (defaults to PATH lookup)")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe-bin", "", "ffprobe binary (defaults to PATH lookup)")

	fs.StringVar(&cfg.Email, "email", "", "user email")
	fs.StringVar(&cfg.Title, "title", "", "song title")
	fs.StringVar(&cfg.Prompt, "prompt", "", "song topic or prompt")
	fs.StringVar(&cfg.Genre, "genre", "", "genre")
	fs.StringVar(&cfg.Mood, "mood", "", "mood")
	fs.StringVar(&cfg.Language, "language", "", "language")
	fs.StringVar(&cfg.Tempo, "tempo", "", "tempo (slow, medium, fast)")
	fs.StringVar(&cfg.Lyrics, "lyrics", "", "custom lyrics")
	fs.StringVar(&cfg.VoiceProfileID, "voice", "", "voice profile id")

	fs.DurationVar(&cfg.TargetDuration, "duration", 50*time.Second, "target song duration")
	fs.Float64Var(&cfg.VocalsVolume, "vocals-volume", 1.0, "vocals volume in the final mix")
	fs.Float64Var(&cfg.InstrumentalVolume, "instrumental-volume", 0.4, "instrumental volume in the final mix")
	fs.Float64Var(&cfg.ReverbAmount, "reverb", 0.0, "reverb amount for converted vocals (0 to 1)")
	fs.IntVar(&cfg.CreditCost, "credit-cost", 1, "credits debited per song")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songforge %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SONGFORGE"),
		},
		ShortHelp: fmt.Sprintf("songforge %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newVoiceCommand() *ffcli.Command {
	cmd := "voice"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &voice.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (local, sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.KitsKey, "kits-key", "", "kits.ai api key")

	fs.StringVar(&cfg.Action, "action", "", "action (register, status, delete)")
	fs.StringVar(&cfg.Email, "email", "", "user email")
	fs.StringVar(&cfg.Name, "name", "", "voice profile name")
	fs.StringVar(&cfg.Sample, "sample", "", "voice sample file (mp3)")
	fs.StringVar(&cfg.ID, "id", "", "voice profile id")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songforge %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SONGFORGE"),
		},
		ShortHelp: fmt.Sprintf("songforge %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return voice.Run(ctx, cfg)
		},
	}
}

func newLyricsCommand() *ffcli.Command {
	cmd := "lyrics"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &lyrics.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key")
	fs.StringVar(&cfg.Topic, "topic", "", "song topic")
	fs.StringVar(&cfg.Genre, "genre", "", "genre")
	fs.StringVar(&cfg.Mood, "mood", "", "mood")
	fs.StringVar(&cfg.Language, "language", "", "language")
	fs.StringVar(&cfg.Notes, "notes", "", "extra notes for the writer")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("songforge %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SONGFORGE"),
		},
		ShortHelp: fmt.Sprintf("songforge %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return lyrics.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
