package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables recognized on top of the config file. They follow
// the deployment convention this bot has always used, so a plain
// PRACTICUM_TOKEN/TELEGRAM_TOKEN/TELEGRAM_CHAT_ID environment works with no
// config file at all.
const (
	EnvPracticumToken = "PRACTICUM_TOKEN"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvRetryTime      = "RETRY_TIME" // poll interval in seconds
)

// ApplyEnv overlays environment variables onto cfg. Set variables win over
// file values; unset ones leave the file values alone.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvPracticumToken)); v != "" {
		cfg.Practicum.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, v, err)
		}
		cfg.Telegram.ChatID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvRetryTime)); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("%s: invalid interval %q (want seconds > 0)", EnvRetryTime, v)
		}
		cfg.Poller.Schedule = strconv.Itoa(secs) + "s"
	}
	return nil
}
