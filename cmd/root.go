package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/nzcve71300/Zentro-Assistant/zentrobot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = zentrobot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "zentrobot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings into *slog.LevelVar
// during viper unmarshaling.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", zentrobot.DefaultDatabase)
	viper.SetDefault("database_type", zentrobot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		zentrobot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		zentrobot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", zentrobot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", zentrobot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", zentrobot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.admin_role_id", "")
	viper.SetDefault("discord.member_role_id", "")
	viper.SetDefault("discord.welcome_channel_id", "")
	viper.SetDefault("discord.promotion_channel_id", "")
	viper.SetDefault("discord.custom_status", zentrobot.DefaultDiscordCustomStatus)
	viper.SetDefault("discord.ticket_close_delay", zentrobot.DefaultTicketCloseDelay)
	viper.SetDefault(
		"discord.log_level",
		zentrobot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		zentrobot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		zentrobot.DefaultDiscordGatewayIntent,
	)

	// Moderation config
	viper.SetDefault("moderation.enabled", true)
	viper.SetDefault("moderation.allowed_channel_ids", []string{})
	viper.SetDefault("moderation.warning_ttl", zentrobot.DefaultModerationWarningTTL)
	viper.SetDefault("moderation.warning_burst", zentrobot.DefaultModerationBurst)

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", zentrobot.DefaultAPIListen)
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.allow_origins", []string{})
	viper.SetDefault("api.log_level", zentrobot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", zentrobot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		zentrobot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", zentrobot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", zentrobot.DefaultIdleTimeout)

	envPrefix := os.Getenv(zentrobot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = zentrobot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.Set(
		"moderation.allowed_channel_ids",
		viper.GetStringSlice("moderation.allowed_channel_ids"),
	)
	viper.Set(
		"api.allow_origins",
		viper.GetStringSlice("api.allow_origins"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
