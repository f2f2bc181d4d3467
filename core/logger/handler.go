package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders every record as one flat line with a stable key order.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	jsonOut := h.cfg.format == formatJSON

	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		rec.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.prefix, a)
		return true
	})
	rec.fromContext(ctx)
	rec.compactRID(jsonOut)
	rec.fallback("event", r.Message, "unknown")
	rec.fallback("component", "", "app")
	rec.sanitize()

	keys := rec.keys(h.cfg.keyOrder)
	var (
		line []byte
		err  error
	)
	if jsonOut {
		line, err = encodeJSON(rec, keys)
		if err != nil {
			return err
		}
	} else {
		line = encodeKV(rec, keys)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// record holds the flattened fields of one log line.
type record map[string]any

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// add flattens groups into dotted keys and stores normalized values.
func (rec record) add(prefix string, attr slog.Attr) {
	key := joinKey(prefix, attr.Key)
	val := attr.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		for _, child := range val.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeValue(key, val); ok {
		rec[k] = v
	}
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// setDefault stores v under key unless the record already has it or present is false.
func (rec record) setDefault(key string, v any, present bool) {
	if _, ok := rec[key]; present && !ok {
		rec[key] = v
	}
}

func (rec record) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	rid := RIDFrom(ctx)
	rec.setDefault("rid", rid, rid != "")
	m := metaFrom(ctx)
	rec.setDefault("user_id", m.userID, m.userID != 0)
	rec.setDefault("update_id", m.updateID, m.updateID != 0)
	rec.setDefault("chat_id", m.chatID, m.chatID != 0)
	handler := HandlerFrom(ctx)
	rec.setDefault("handler", handler, handler != "")
}

// compactRID shortens update rids; JSON output keeps the original as rid_full.
func (rec record) compactRID(keepFull bool) {
	rid := rec.str("rid")
	if rid == "" {
		return
	}
	if compact := CompactRID(rid); compact != rid {
		if keepFull {
			rec["rid_full"] = rid
		}
		rec["rid"] = compact
	}
}

func (rec record) fallback(key, preferred, last string) {
	if rec.str(key) != "" {
		return
	}
	if preferred == "" {
		preferred = last
	}
	rec[key] = preferred
}

// sanitize normalizes enumerated values and drops empty fields.
func (rec record) sanitize() {
	if s := rec.str("status"); s != "" {
		rec["status"] = normalizeStatus(s)
	}
	if o := rec.str("outcome"); o != "" {
		if normalized, ok := normalizeOutcome(o); ok {
			rec["outcome"] = normalized
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if v == nil || v == "" {
			delete(rec, k)
		}
	}
}

// keys lists the keys in order first, then the rest alphabetically.
func (rec record) keys(order []string) []string {
	out := make([]string, 0, len(rec))
	listed := make(map[string]bool, len(order))
	for _, key := range order {
		if _, ok := rec[key]; ok && !listed[key] {
			out = append(out, key)
		}
		listed[key] = true
	}
	n := len(out)
	for key := range rec {
		if !listed[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out[n:])
	return out
}

// durationKey renames duration attributes so every duration is logged in milliseconds.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func normalizeValue(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func encodeJSON(rec record, keys []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, key := range keys {
		data, err := json.Marshal(rec[key])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", key, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, key)
		buf = append(buf, ':')
		buf = append(buf, data...)
	}
	return append(buf, '}'), nil
}

func encodeKV(rec record, keys []string) []byte {
	buf := make([]byte, 0, 256)
	for i, key := range keys {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = append(buf, kvValue(rec[key])...)
	}
	return buf
}

// kvValue quotes values holding spaces, control runes, '=' or '"'.
func kvValue(val any) string {
	s, ok := val.(string)
	if !ok {
		s = fmt.Sprint(val)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
