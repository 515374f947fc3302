package blob

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/store"
)

// Source fetches the raw bytes stored under a json_data key. A nil slice with
// a nil error means the key has no row.
type Source interface {
	LoadBlob(ctx context.Context, key string) ([]byte, error)
}

// Reader loads blob documents and falls back to their defaults whenever the
// stored value cannot be used. It never returns an error; the Status says
// whether the value was loaded or defaulted.
type Reader struct {
	src     Source
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewReader(src Source, log logrus.FieldLogger, m *metrics.Metrics) *Reader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reader{src: src, log: log, metrics: m}
}

func (r *Reader) Main(ctx context.Context) (MainData, store.Status) {
	raw, status := r.load(ctx, store.BlobMainData)
	if status != store.StatusLoaded {
		return DefaultMainData(), status
	}
	doc, skipped, err := DecodeMain(raw)
	if skipped > 0 {
		r.log.WithFields(logrus.Fields{
			"source":  store.BlobMainData,
			"skipped": skipped,
		}).Warn("skipped user entries with non-numeric ids")
	}
	return doc, r.decoded(store.BlobMainData, err)
}

func (r *Reader) Duels(ctx context.Context) (DuelsData, store.Status) {
	raw, status := r.load(ctx, store.BlobDuelsData)
	if status != store.StatusLoaded {
		return DefaultDuelsData(), status
	}
	doc, err := DecodeDuels(raw)
	return doc, r.decoded(store.BlobDuelsData, err)
}

func (r *Reader) Warnings(ctx context.Context) (WarningsData, store.Status) {
	raw, status := r.load(ctx, store.BlobWarningsData)
	if status != store.StatusLoaded {
		return DefaultWarningsData(), status
	}
	doc, err := DecodeWarnings(raw)
	return doc, r.decoded(store.BlobWarningsData, err)
}

func (r *Reader) Guardian(ctx context.Context) (GuardianStats, store.Status) {
	raw, status := r.load(ctx, store.BlobGuardianStats)
	if status != store.StatusLoaded {
		return DefaultGuardianStats(), status
	}
	doc, err := DecodeGuardian(raw)
	return doc, r.decoded(store.BlobGuardianStats, err)
}

func (r *Reader) load(ctx context.Context, key string) ([]byte, store.Status) {
	raw, err := r.src.LoadBlob(ctx, key)
	if err != nil {
		return nil, r.defaulted(key, store.Classify(err), err)
	}
	if raw == nil {
		return nil, r.defaulted(key, store.StatusMissing, nil)
	}
	return raw, store.StatusLoaded
}

// decoded turns a decode error into a Status. A stored null or empty value is
// missing data rather than a malformed document.
func (r *Reader) decoded(key string, err error) store.Status {
	switch {
	case err == nil:
		return store.StatusLoaded
	case errors.Is(err, ErrEmptyDocument):
		return r.defaulted(key, store.StatusMissing, err)
	default:
		return r.defaulted(key, store.StatusMalformed, err)
	}
}

func (r *Reader) defaulted(key string, status store.Status, err error) store.Status {
	r.metrics.SourceDefaulted(key, string(status))
	entry := r.log.WithFields(logrus.Fields{"source": key, "status": status})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("blob unavailable, using default")
	return status
}
