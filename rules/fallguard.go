//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the Add/Done goroutine pattern that wg.Go replaces.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(func() {
//	    work()
//	})
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`go func() { $*_; $wg.Done() }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of a trailing Done() call")
}

// TimeLayoutConstants flags literal layouts that have a named constant.
func TimeLayoutConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime) instead of a literal layout`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`time.Parse("2006-01-02 15:04:05", $s)`).
		Report(`use time.Parse(time.DateTime, $s) instead of a literal layout`).
		Suggest(`time.Parse(time.DateTime, $s)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly) instead of a literal layout`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`time.Parse("2006-01-02", $s)`).
		Report(`use time.Parse(time.DateOnly, $s) instead of a literal layout`).
		Suggest(`time.Parse(time.DateOnly, $s)`)

	m.Match(`$t.Format("15:04:05")`).
		Report(`use $t.Format(time.TimeOnly) instead of a literal layout`).
		Suggest(`$t.Format(time.TimeOnly)`)
}

// NoPrintInInternal keeps library packages on the structured logger.
// Command output under cmd/ is exempt.
func NoPrintInInternal(m dsl.Matcher) {
	m.Match(`fmt.Print($*_)`, `fmt.Println($*_)`, `fmt.Printf($*_)`,
		`log.Print($*_)`, `log.Println($*_)`, `log.Printf($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the internal/logger package instead of $$")
}

// NoWallClockInAccident flags wall-clock reads in the coordinator package.
// The state machine takes its time from the clock set by WithClock so that the
// simulator can drive it deterministically.
func NoWallClockInAccident(m dsl.Matcher) {
	m.Match(`time.Now()`, `time.Since($_)`, `time.After($_)`, `time.Sleep($_)`).
		Where(m.File().PkgPath.Matches(`/internal/accident$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("read time from the coordinator clock instead of $$")
}
