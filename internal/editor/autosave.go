package editor

import "time"

const (
	DefaultDelay       = 3 * time.Second
	DefaultCeiling     = 30 * time.Second
	DefaultSaveTimeout = 15 * time.Second
)

type timerKind int

const (
	timerDebounce timerKind = iota
	timerWatchdog
)

func (k timerKind) String() string {
	if k == timerWatchdog {
		return "watchdog"
	}
	return "debounce"
}

// autoSaver owns the debounce and watchdog timers of one Session.
// Every method is called with the Session mutex held. Callbacks carry the
// generation they were armed with; a stopped or re-armed timer that still
// fires is ignored by the Session.
type autoSaver struct {
	clock   Clock
	delay   time.Duration
	ceiling time.Duration
	fire    func(kind timerKind, gen uint64)

	debounce    Timer
	debounceGen uint64
	watchdog    Timer
	watchdogGen uint64
}

func newAutoSaver(clock Clock, delay, ceiling time.Duration, fire func(timerKind, uint64)) *autoSaver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &autoSaver{clock: clock, delay: delay, ceiling: ceiling, fire: fire}
}

// armDebounce (re)starts the quiet-period timer.
func (a *autoSaver) armDebounce() {
	a.cancelDebounce()
	a.debounceGen++
	gen := a.debounceGen
	a.debounce = a.clock.AfterFunc(a.delay, func() { a.fire(timerDebounce, gen) })
}

// armWatchdog bounds staleness: it fires once ceiling has elapsed since
// lastSaved. An armed watchdog is left alone so continuous typing cannot push it back.
func (a *autoSaver) armWatchdog(lastSaved time.Time) {
	if a.watchdog != nil {
		return
	}
	wait := a.ceiling - a.clock.Now().Sub(lastSaved)
	if wait < 0 {
		wait = 0
	}
	a.watchdogGen++
	gen := a.watchdogGen
	a.watchdog = a.clock.AfterFunc(wait, func() { a.fire(timerWatchdog, gen) })
}

func (a *autoSaver) cancelDebounce() {
	if a.debounce != nil {
		a.debounce.Stop()
		a.debounce = nil
	}
	a.debounceGen++
}

func (a *autoSaver) stopWatchdog() {
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
	a.watchdogGen++
}

func (a *autoSaver) stop() {
	a.cancelDebounce()
	a.stopWatchdog()
}

// claim reports whether a callback is still current and, if so, forgets the timer.
func (a *autoSaver) claim(kind timerKind, gen uint64) bool {
	switch kind {
	case timerDebounce:
		if a.debounce == nil || gen != a.debounceGen {
			return false
		}
		a.debounce = nil
	case timerWatchdog:
		if a.watchdog == nil || gen != a.watchdogGen {
			return false
		}
		a.watchdog = nil
	}
	return true
}

func (a *autoSaver) pending() (debounce, watchdog bool) {
	return a.debounce != nil, a.watchdog != nil
}
