package pool

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/coachpo/spawnpool/internal/telemetry"
)

// Stats is a point-in-time view of one pool.
type Stats struct {
	Name        string `json:"name"`
	ObjectType  string `json:"objectType"`
	Discipline  string `json:"discipline"`
	Persistent  bool   `json:"persistent"`
	Created     int    `json:"created"`
	Free        int    `json:"free"`
	Outstanding int    `json:"outstanding"`
	Pending     int    `json:"pendingReturns"`
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:        p.name,
		ObjectType:  p.objectType,
		Discipline:  p.opts.discipline.String(),
		Persistent:  p.opts.persistent,
		Created:     p.CountCreated(),
		Free:        p.CountFree(),
		Outstanding: p.CountOutstanding(),
		Pending:     p.CountPending(),
	}
}

func (p *Pool) level() telemetry.PoolLevel {
	return telemetry.PoolLevel{
		Pool:        p.name,
		ObjectType:  p.objectType,
		Free:        int64(p.CountFree()),
		Outstanding: int64(p.CountOutstanding()),
	}
}

// EncodeJSON marshals v without HTML escaping and without the trailing
// newline the encoder appends.
func EncodeJSON(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// WriteStats writes the stats snapshot as one JSON line.
func WriteStats(w io.Writer, stats []Stats) error {
	if stats == nil {
		stats = []Stats{}
	}
	data, err := EncodeJSON(stats)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
