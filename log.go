package mtproto

import "log"

// Log levels mirror original_source's TGL_DEBUG/TGL_NOTICE/TGL_WARNING/
// TGL_ERROR macros: one function per level, terse call sites, no
// structured fields. A pure client library has no retrieved precedent
// for a structured-logging dependency (DESIGN.md), so this wraps
// log.Default() directly; an embedding application that wants
// structured output can still replace log.Default()'s output writer.
var debugEnabled = false

// SetDebug toggles debugf output; off by default the way a shipped
// client silences its trace lines.
func SetDebug(on bool) { debugEnabled = on }

func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[debug] "+format, args...)
	}
}

func noticef(format string, args ...interface{}) {
	log.Printf("[notice] "+format, args...)
}

func warnf(format string, args ...interface{}) {
	log.Printf("[warning] "+format, args...)
}

func errorf(format string, args ...interface{}) {
	log.Printf("[error] "+format, args...)
}
