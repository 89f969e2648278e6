// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package push

import (
	"log/slog"
	"time"
)

// SlogSink adapts an *slog.Logger into an EventSink, mirroring every
// dispatched event into the structured JSON logging the rest of the teacher
// codebase uses (pkg/logging). If Logger is nil, slog.Default() is used.
//
// SlogSink may be embedded into a caller's own EventSink to forward events
// both to application logic (e.g. a TUI progress bar) and to logs.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Dispatch implements EventSink.
func (s SlogSink) Dispatch(e Event) {
	log := s.logger()
	switch ev := e.(type) {
	case LogEvent:
		switch ev.Level {
		case LogDebug:
			log.Debug(ev.Message)
		case LogWarn:
			log.Warn(ev.Message)
		case LogError:
			log.Error(ev.Message)
		default:
			log.Info(ev.Message)
		}
	case ProgressEvent:
		log.Debug("progress", "unit", ev.Unit, "done", ev.Done, "total", ev.Total)
	case TimerSpanEvent:
		d := time.Duration(ev.End - ev.Start)
		log.Debug("timer span", "name", ev.Name, "duration", d.String())
	case ImageCreatedEvent:
		log.Info("image created",
			"digest", ev.ImageDigest.String(),
			"config_digest", ev.ConfigDigest.String(),
			"layers", len(ev.Image.Layers),
		)
	}
}

// MultiSink fans a single event out to every sink it wraps, in order.
type MultiSink []EventSink

func (m MultiSink) Dispatch(e Event) {
	for _, s := range m {
		if s != nil {
			s.Dispatch(e)
		}
	}
}
