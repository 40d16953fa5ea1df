// Package mstp provides the MS/TP (Master-Slave/Token-Passing) MAC layer
// for RS-485 buses.
package mstp

// MS/TP is a token ring run over a shared half-duplex serial bus. Only the
// station holding the token may initiate a transmission, which gives every
// master deterministic, collision free access to the medium. Slaves never
// hold the token and only answer requests addressed to them.
//
// The package is layered following the data flow:
//
//	UART byte callback -> Receiver (byte context)
//	  -> frame message -> Interface loop (MAC context)
//	  -> master/slave FSM -> transmit / upward delivery
//
// The byte context is the sole writer of a frame buffer until the buffer is
// posted to the MAC loop; the MAC loop returns it once the frame has been
// consumed. No locks are taken on that path.
