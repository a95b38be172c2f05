package main

import (
	"log"

	"github.com/Great-Trading-eXperience/barista-bot/internal/jsonl"
)

type botLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	ConfigPath string `json:"config_path,omitempty"`
	Market     string `json:"market,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	Agents     int    `json:"agents,omitempty"`

	Worker string `json:"worker,omitempty"`
	Err    string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func logBotEvent(w *jsonl.Writer, ev botLogEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}
