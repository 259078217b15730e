// Package shutdown runs registered cleanup hooks when the process is asked
// to stop.
//
//	h := shutdown.NewHandler(15 * time.Second)
//	h.OnShutdown(srv.Shutdown)
//	err := h.Wait(ctx) // returns after SIGINT/SIGTERM or ctx cancellation
package shutdown
