// Package recorder saves finalized capture buffers as records and loads
// them back.
package recorder

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/db"
	"github.com/jwulff/sensorlog/internal/payload"
)

// RecordStore is the subset of db.Store the recorder needs.
type RecordStore interface {
	CreateRecord(ctx context.Context, r db.NewRecord) (int64, error)
	GetRecord(ctx context.Context, id int64) (db.Record, error)
}

// Recorder glues the payload codec to the record store.
type Recorder struct {
	store RecordStore
	clk   clock.Clock
	log   *zap.Logger
}

// New returns a Recorder. A nil clock means wall time; a nil logger
// discards output.
func New(store RecordStore, clk clock.Clock, log *zap.Logger) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, clk: clk, log: log}
}

// Save encodes buf and writes it as a new record stamped with the current
// time. The present kinds are taken from the buffer.
func (r *Recorder) Save(ctx context.Context, title, notes string, buf *capture.Buffer) (int64, error) {
	data, err := payload.Encode(buf)
	if err != nil {
		r.log.Error("encode session", zap.Error(err))
		return 0, err
	}
	id, err := r.store.CreateRecord(ctx, db.NewRecord{
		Title:     title,
		Notes:     notes,
		CreatedAt: r.clk.Now(),
		Payload:   data,
		Kinds:     buf.Kinds(),
	})
	if err != nil {
		r.log.Error("save session", zap.String("title", title), zap.Error(err))
		return 0, err
	}
	r.log.Info("session saved",
		zap.Int64("id", id),
		zap.String("title", title),
		zap.Int("bytes", len(data)))
	return id, nil
}

// Load fetches record id and decodes its payload.
func (r *Recorder) Load(ctx context.Context, id int64) (db.Record, *capture.Buffer, error) {
	rec, err := r.store.GetRecord(ctx, id)
	if err != nil {
		return db.Record{}, nil, err
	}
	buf, err := payload.Decode(rec.Payload)
	if err != nil {
		r.log.Warn("decode session", zap.Int64("id", id), zap.Error(err))
		return rec, nil, err
	}
	return rec, buf, nil
}
