// Package relay republishes a model's token stream as generation events:
// every chunk, a partial file snapshot whenever more files become
// parseable, and exactly one terminal complete or error event.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"appgen_server/internal/ai"
	"appgen_server/internal/extractor"
	"appgen_server/internal/types"
	"appgen_server/internal/utils"
)

// Streamer opens the upstream model stream.
type Streamer interface {
	StreamAppFiles(ctx context.Context, appName, description string) (ai.ChunkStream, error)
}

// EmitFunc delivers one event downstream. An error means the consumer is
// gone and the run stops.
type EmitFunc func(types.StreamEvent) error

// Observer follows a run. Progress is called after every chunk with the
// latest file snapshot (possibly empty) and the accumulated buffer.
type Observer interface {
	Progress(files []types.GeneratedFile, buffer string)
	Finished(ev types.StreamEvent)
}

type Request struct {
	AppName     string
	Description string
}

// Run drives one generation to its terminal event. Chunks are read one at a
// time; the extractor and observer run before the next read. A cancelled
// ctx ends the run without emitting anything further and is not an error.
func Run(ctx context.Context, s Streamer, req Request, emit EmitFunc, obs Observer) error {
	finish := func(ev types.StreamEvent) error {
		if obs != nil {
			obs.Finished(ev)
		}
		if err := emit(ev); err != nil {
			return fmt.Errorf("emit terminal event: %w", err)
		}
		return nil
	}

	stream, err := s.StreamAppFiles(ctx, req.AppName, req.Description)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logUpstreamFailure(req.AppName, err)
		return finish(types.ErrorEvent(upstreamMessage(err)))
	}
	defer stream.Close()

	ex := extractor.New()
	var files []types.GeneratedFile
	for {
		chunk, err := stream.Recv()
		if ctx.Err() != nil {
			log.Printf("Generation for %q cancelled after %d bytes", req.AppName, len(ex.Buffer()))
			return nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logUpstreamFailure(req.AppName, err)
			return finish(types.ErrorEvent(upstreamMessage(err)))
		}

		ex.Write(chunk)
		if err := emit(types.ChunkEvent(chunk)); err != nil {
			return fmt.Errorf("emit chunk: %w", err)
		}
		if partial, ok := ex.Partial(); ok {
			files = partial
			if err := emit(types.PartialEvent(partial)); err != nil {
				return fmt.Errorf("emit partial: %w", err)
			}
		}
		if obs != nil {
			obs.Progress(files, ex.Buffer())
		}
	}

	final, err := ex.Final()
	if err != nil {
		var parseErr *extractor.ParseError
		if errors.As(err, &parseErr) {
			log.Printf("Parse error details for %q: %s", req.AppName, parseErr.Excerpt)
			ev := types.ErrorEvent("Parse error: " + parseErr.Reason)
			ev.Excerpt = parseErr.Excerpt
			return finish(ev)
		}
		return finish(types.ErrorEvent(err.Error()))
	}
	log.Printf("Generation for %q complete: %d files", req.AppName, len(final))
	if obs != nil {
		obs.Progress(final, ex.Buffer())
	}
	return finish(types.CompleteEvent(final))
}

// upstreamMessage unwraps go-openai errors so the user sees the provider's
// own message.
func upstreamMessage(err error) string {
	var inner interface{ Unwrap() error }
	for errors.As(err, &inner) {
		next := inner.Unwrap()
		if next == nil {
			break
		}
		err = next
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Generation failed"
}

func logUpstreamFailure(appName string, err error) {
	if utils.IsTransient(err) {
		log.Printf("WARN: transient upstream failure for %q (not retried): %v", appName, err)
		return
	}
	log.Printf("ERROR: upstream failure for %q: %v", appName, err)
}
