package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// defaultSampleEvery keeps one debug detail record out of fifty.
const defaultSampleEvery = 50

// everyN passes one call out of every n. n == 0 passes nothing, n == 1 everything.
type everyN struct {
	n    atomic.Uint64
	seen atomic.Uint64
}

func (s *everyN) set(n uint64) {
	s.n.Store(n)
	s.seen.Store(0)
}

func (s *everyN) allow() bool {
	n := s.n.Load()
	switch n {
	case 0:
		return false
	case 1:
		return true
	}
	return s.seen.Add(1)%n == 1
}

// parseSampleSpec reads logging.debug_sample. Accepted forms are "all",
// "off", "N" and "1/N". ok is false for anything else.
func parseSampleSpec(spec string) (every uint64, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return defaultSampleEvery, true
	case "all", "1/1":
		return 1, true
	case "off", "none", "0":
		return 0, true
	}
	if num, den, found := strings.Cut(spec, "/"); found {
		if strings.TrimSpace(num) != "1" {
			return 0, false
		}
		spec = den
	}
	n, err := strconv.ParseUint(strings.TrimSpace(spec), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}
