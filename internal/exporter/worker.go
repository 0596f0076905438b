package exporter

// run is the worker goroutine. It exits only through StateExit.
func (e *Exporter) run() {
	defer close(e.done)

	e.log.Debug().Msg("Worker started")
	for {
		i, seq, ok := e.h.take()
		if !ok {
			e.log.Debug().Msg("Worker stopped")
			return
		}

		e.transform(e.out, e.h.bufs[i].pix, e.dims)
		e.h.release(i)

		err := e.writer.WriteFrame(e.out)
		if err != nil {
			err = &WriteError{Seq: seq, Err: err}
		}
		e.h.finish(err)

		if err != nil {
			e.log.Error().
				Err(err).
				Uint64("seq", seq).
				Msg("Failed to write frame")
			if e.onError != nil {
				e.onError(err)
			}
			continue
		}

		e.log.Trace().Uint64("seq", seq).Msg("Frame written")
		if e.onFrame != nil {
			e.onFrame(seq)
		}
	}
}
