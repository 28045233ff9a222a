package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/casualjim/instruct/provider"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const maxLineSize = 4 << 20

// Load reads JSON lines captured by Record. Consecutive fragment lines form one
// script, which ends at a fragment with a finish reason. A response line is a script
// of its own and an error line fails the next call.
func Load(r io.Reader) ([]Script, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		scripts []Script
		current []provider.PartialInferenceResponse
		lineNo  int
	)
	flush := func() {
		if len(current) > 0 {
			scripts = append(scripts, Script{Fragments: current})
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			flush()
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("line %d: invalid json", lineNo)
		}

		switch typ := gjson.GetBytes(line, "type").String(); typ {
		case "fragment":
			var frag provider.PartialInferenceResponse
			if err := frag.UnmarshalJSON(line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = append(current, frag)
			if frag.IsTerminal() {
				flush()
			}
		case "response":
			flush()
			var resp provider.InferenceResponse
			if err := resp.UnmarshalJSON(line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			scripts = append(scripts, Script{Response: &resp})
		case "error":
			msg := gjson.GetBytes(line, "error")
			if !msg.Exists() {
				return nil, fmt.Errorf("line %d: missing required field 'error'", lineNo)
			}
			if len(current) > 0 {
				scripts = append(scripts, Script{Fragments: current, StreamErr: errors.New(msg.String())})
				current = nil
				continue
			}
			scripts = append(scripts, Script{Err: errors.New(msg.String())})
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", lineNo, typ)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return scripts, nil
}

// Open loads the scripts from r into a new Provider.
func Open(r io.Reader) (*Provider, error) {
	scripts, err := Load(r)
	if err != nil {
		return nil, err
	}
	return New(scripts...), nil
}

// Record wraps a provider and writes every reply it produces to w in the format Load
// reads back.
func Record(p provider.Provider, w io.Writer) provider.Provider {
	return &recorder{next: p, w: w}
}

type recorder struct {
	next provider.Provider
	mu   sync.Mutex
	w    io.Writer
}

func (r *recorder) write(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return nil
}

func (r *recorder) writeError(err error) error {
	line, merr := sjson.SetBytes([]byte(`{"type":"error"}`), "error", err.Error())
	if merr != nil {
		return merr
	}
	return r.write(line)
}

func (r *recorder) Complete(ctx context.Context, req provider.Request) (*provider.InferenceResponse, error) {
	resp, err := r.next.Complete(ctx, req)
	if err != nil {
		return nil, errors.Join(err, r.writeError(err))
	}
	line, err := resp.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := r.write(line); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *recorder) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	s, err := r.next.Stream(ctx, req)
	if err != nil {
		return nil, errors.Join(err, r.writeError(err))
	}
	return &recordingStream{Stream: s, rec: r}, nil
}

type recordingStream struct {
	provider.Stream
	rec *recorder
}

func (s *recordingStream) Next(ctx context.Context) (provider.PartialInferenceResponse, error) {
	frag, err := s.Stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		return frag, err
	}
	if err != nil {
		return frag, errors.Join(err, s.rec.writeError(err))
	}
	line, merr := frag.MarshalJSON()
	if merr != nil {
		return frag, merr
	}
	if werr := s.rec.write(line); werr != nil {
		return frag, werr
	}
	return frag, nil
}
