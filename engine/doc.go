// Package engine streams filtered noise to an audio sink on a dedicated goroutine.
//
// An Engine has the states Idle, Playing and Released. Start launches exactly one production
// goroutine that fills a reusable buffer from the noise filter and performs a blocking write
// to the sink, once per buffer period. Stop clears the playing flag and joins the goroutine
// before the sink is flushed, so no write can race the flush. SetVolume may be called from
// any goroutine and takes effect on the next buffer.
//
// A failed sink write ends the session: the engine returns to Idle and observers registered
// with Observe receive a Status carrying a *nois.WriteError.
package engine
