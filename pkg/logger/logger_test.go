package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/logger"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

// decodeJSONLine parses a single JSON log record from buf.
func decodeJSONLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records with attributes", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("stream ended", "events", 3)

			Expect(buf.String()).To(ContainSubstring("stream ended"))
			Expect(buf.String()).To(ContainSubstring("events=3"))
		})

		It("filters debug records unless debug is enabled", func() {
			var quiet, loud bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("hidden")
			logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("shown")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("shown"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Warn("failed to parse stream line", "line", "not json")

			parsed := decodeJSONLine(&buf)
			Expect(parsed["msg"]).To(Equal("failed to parse stream line"))
			Expect(parsed["line"]).To(Equal("not json"))
			Expect(parsed["level"]).To(Equal("WARN"))
		})

		It("writes pretty records with a prefix", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithPrefix("relay"))
			l.Info("listening")

			Expect(buf.String()).To(ContainSubstring("listening"))
			Expect(buf.String()).To(ContainSubstring("relay"))
		})

		It("honours debug level in the pretty handler", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithDebug(true))
			l.Debug("event received")

			Expect(buf.String()).To(ContainSubstring("event received"))
		})

		It("fans out to multiple writers", func() {
			var a, b bytes.Buffer
			logger.New(logger.WithWriters(&a, &b)).Info("twice")

			Expect(a.String()).To(ContainSubstring("twice"))
			Expect(b.String()).To(ContainSubstring("twice"))
		})

		It("binds attributes with With", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.With("component", "relay").Info("started")

			Expect(decodeJSONLine(&buf)["component"]).To(Equal("relay"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})

		It("does not panic", func() {
			l := logger.Nop()
			Expect(func() {
				l.With("k", "v").WithGroup("g").Error("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to every logger", func() {
			var text, js bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&text)),
				logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
			)
			multi.Info("broadcast", "key", "val")

			Expect(text.String()).To(ContainSubstring("broadcast"))
			Expect(decodeJSONLine(&js)["key"]).To(Equal("val"))
		})

		It("skips loggers whose level filters the record", func() {
			var info, debug bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&info)),
				logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
			)
			multi.Debug("detail")

			Expect(info.String()).To(BeEmpty())
			Expect(debug.String()).To(ContainSubstring("detail"))
		})

		It("keeps writing to the other loggers when one fails", func() {
			var buf bytes.Buffer
			failing := slog.New(slog.NewJSONHandler(failingWriter{}, nil))
			multi := logger.Multi(failing, logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))

			err := multi.Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0))

			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(decodeJSONLine(&buf)["msg"]).To(Equal("still here"))
		})

		It("nests attributes under WithGroup", func() {
			var buf bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
			multi.WithGroup("request").Info("relayed", "path", "/api/orchestrator")

			group, ok := decodeJSONLine(&buf)["request"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(group["path"]).To(Equal("/api/orchestrator"))
		})
	})
})
